package schedule

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/internal/service"
	"HabitPact/pkg/errors"
)

type fakeEvaluator struct {
	due       []int64
	failing   map[int64]error
	evaluated []int64
	block     chan struct{}
}

func (f *fakeEvaluator) DueForEvaluation(ctx context.Context, limit int) ([]int64, error) {
	if f.block != nil {
		<-f.block
	}
	return f.due, nil
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, id int64) (*model.Challenge, error) {
	if err := f.failing[id]; err != nil {
		return nil, err
	}
	f.evaluated = append(f.evaluated, id)
	return &model.Challenge{BaseModel: model.BaseModel{ID: id}, Status: model.ChallengeStatusCompleted}, nil
}

type fakeSettler struct {
	unsettled []int64
	failing   map[int64]error
	settled   []int64
}

func (f *fakeSettler) Unsettled(ctx context.Context, limit int) ([]int64, error) {
	return f.unsettled, nil
}

func (f *fakeSettler) Settle(ctx context.Context, id int64) (*service.SettlementResult, error) {
	if err := f.failing[id]; err != nil {
		return nil, err
	}
	f.settled = append(f.settled, id)
	return &service.SettlementResult{}, nil
}

type fakeDispatcher struct {
	stats service.DispatchStats
	calls int
}

func (f *fakeDispatcher) DispatchPending(ctx context.Context, limit int) (service.DispatchStats, error) {
	f.calls++
	return f.stats, nil
}

type fakeFlusher struct {
	err       error
	published int
	calls     int
}

func (f *fakeFlusher) Flush(ctx context.Context, batch int) (int, error) {
	f.calls++
	return f.published, f.err
}

func newTestSweeper() (*ChallengeSweeper, *fakeEvaluator, *fakeSettler, *fakeDispatcher, *fakeFlusher) {
	ev := &fakeEvaluator{}
	st := &fakeSettler{}
	dp := &fakeDispatcher{}
	fl := &fakeFlusher{}
	return NewChallengeSweeper(ev, st, dp, fl, cache.NewLocalLocker()), ev, st, dp, fl
}

func TestSweepRunsEveryStage(t *testing.T) {
	s, ev, st, dp, fl := newTestSweeper()
	ev.due = []int64{1, 2}
	st.unsettled = []int64{3}
	dp.stats = service.DispatchStats{Completed: 2}
	fl.published = 4

	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, stats.Evaluated)
	require.Equal(t, 1, stats.Settled)
	require.Equal(t, 2, stats.Payouts.Completed)
	require.Equal(t, 4, stats.Published)
	require.Zero(t, stats.Failures)
	require.Equal(t, []int64{1, 2}, ev.evaluated)
	require.Equal(t, []int64{3}, st.settled)
	require.False(t, s.LastRun().IsZero())
}

func TestSweepContinuesPastFailures(t *testing.T) {
	s, ev, st, dp, fl := newTestSweeper()
	ev.due = []int64{1, 2, 3}
	ev.failing = map[int64]error{2: fmt.Errorf("%w: boom", errors.StorageUnavailable)}
	st.unsettled = []int64{4, 5, 6}
	st.failing = map[int64]error{
		4: errors.SettlementConflict,
		5: errors.SettlementHalted,
	}
	fl.err = fmt.Errorf("broker down")

	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, []int64{1, 3}, ev.evaluated)
	require.Equal(t, []int64{6}, st.settled)
	require.Equal(t, 2, stats.Evaluated)
	require.Equal(t, 1, stats.Settled)
	// 评估失败、结算被拦截、outbox 投递失败；结算冲突不计入
	require.Equal(t, 3, stats.Failures)
	require.Equal(t, 1, dp.calls)
	require.Equal(t, 1, fl.calls)
}

func TestSweepSkipsWhenLockHeld(t *testing.T) {
	s, ev, _, dp, _ := newTestSweeper()
	ev.due = []int64{1}

	ok, err := s.Locker.TryLock(context.Background(), sweepLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Evaluated)
	require.Empty(t, ev.evaluated)
	require.Zero(t, dp.calls)

	require.NoError(t, s.Locker.Unlock(context.Background(), sweepLockKey))
	stats, err = s.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, stats.Evaluated)
}

func TestSweepNotReentrant(t *testing.T) {
	s, ev, _, dp, _ := newTestSweeper()
	ev.block = make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.Sweep(context.Background())
	}()

	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.running
	}, time.Second, 5*time.Millisecond)

	stats, err := s.Sweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Evaluated)

	close(ev.block)
	wg.Wait()
	require.Equal(t, 1, dp.calls)
}
