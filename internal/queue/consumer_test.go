package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
)

type memoryMarker struct {
	mu      sync.Mutex
	state   map[string]string
	failGet bool
}

func newMemoryMarker() *memoryMarker {
	return &memoryMarker{state: make(map[string]string)}
}

func (m *memoryMarker) TryMarkProcessing(_ context.Context, id string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return false, fmt.Errorf("redis down")
	}
	if _, ok := m.state[id]; ok {
		return false, nil
	}
	m.state[id] = "processing"
	return true, nil
}

func (m *memoryMarker) MarkProcessed(_ context.Context, id string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state[id] = "completed"
	return nil
}

func (m *memoryMarker) UnmarkProcessing(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.state, id)
	return nil
}

type recordingApplier struct {
	applied []model.CheckInAcceptedEvent
	err     error
}

func (a *recordingApplier) ApplyCheckIn(_ context.Context, ev model.CheckInAcceptedEvent) error {
	if a.err != nil {
		return a.err
	}
	a.applied = append(a.applied, ev)
	return nil
}

func delivery(t *testing.T, messageID, eventType string, payload interface{}) amqp.Delivery {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	body, err := json.Marshal(model.EventEnvelope{MessageID: messageID, EventType: eventType, Payload: raw})
	require.NoError(t, err)
	return amqp.Delivery{MessageId: messageID, Body: body}
}

func TestHandleAppliesOnce(t *testing.T) {
	applier := &recordingApplier{}
	marker := newMemoryMarker()
	c := NewCheckInConsumer(applier, marker)

	msg := delivery(t, "m-1", model.EventCheckInAccepted, model.CheckInAcceptedEvent{CheckInLogID: 7, Status: "done"})
	require.NoError(t, c.Handle(context.Background(), msg))

	err := c.Handle(context.Background(), msg)
	require.True(t, errors.IsSkip(err))
	require.Len(t, applier.applied, 1)
	require.Equal(t, "completed", marker.state["m-1"])
}

func TestHandleRequeuesTransientFailure(t *testing.T) {
	applier := &recordingApplier{err: fmt.Errorf("%w: db down", errors.StorageUnavailable)}
	marker := newMemoryMarker()
	c := NewCheckInConsumer(applier, marker)

	err := c.Handle(context.Background(), delivery(t, "m-2", model.EventCheckInAccepted, model.CheckInAcceptedEvent{CheckInLogID: 8}))
	require.Error(t, err)
	require.False(t, errors.IsSkip(err))
	require.NotContains(t, marker.state, "m-2")
}

func TestHandleDropsUnprocessable(t *testing.T) {
	c := NewCheckInConsumer(&recordingApplier{err: errors.InvalidRequest}, newMemoryMarker())

	err := c.Handle(context.Background(), delivery(t, "m-3", model.EventCheckInAccepted, model.CheckInAcceptedEvent{}))
	require.True(t, errors.IsSkip(err))

	err = c.Handle(context.Background(), amqp.Delivery{MessageId: "m-4", Body: []byte("not json")})
	require.True(t, errors.IsSkip(err))

	err = c.Handle(context.Background(), delivery(t, "m-5", model.EventChallengeSettled, model.ChallengeSettledEvent{}))
	require.True(t, errors.IsSkip(err))
}

func TestHandleProceedsWhenMarkerUnavailable(t *testing.T) {
	applier := &recordingApplier{}
	marker := newMemoryMarker()
	marker.failGet = true
	c := NewCheckInConsumer(applier, marker)

	require.NoError(t, c.Handle(context.Background(), delivery(t, "m-6", model.EventCheckInAccepted, model.CheckInAcceptedEvent{CheckInLogID: 9})))
	require.Len(t, applier.applied, 1)
}
