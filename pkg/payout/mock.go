package payout

import (
	"context"
	"fmt"
	"sync"

	"HabitPact/pkg/errors"
)

type MockCall struct {
	IdempotencyKey string
	Currency       string
	UserID         int64
	AmountCents    int64
}

// MockClient 可配置的打款 mock，按幂等键去重
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall
	paid  map[string]*Result

	// FailNext 大于 0 时，接下来的调用返回通道不可用
	FailNext int
	// Reject 命中的用户直接拒绝
	Reject map[int64]bool
}

func NewMockClient() *MockClient {
	return &MockClient{
		Calls:  make([]MockCall, 0),
		paid:   make(map[string]*Result),
		Reject: make(map[int64]bool),
	}
}

func (m *MockClient) RequestPayout(ctx context.Context, userID, amountCents int64, currency, idempotencyKey string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{
		IdempotencyKey: idempotencyKey,
		Currency:       currency,
		UserID:         userID,
		AmountCents:    amountCents,
	})

	if m.FailNext > 0 {
		m.FailNext--
		return nil, fmt.Errorf("%w: mock outage", errors.PayoutUnavailable)
	}
	if m.Reject[userID] {
		return nil, fmt.Errorf("%w: mock rejected user %d", errors.PayoutRejected, userID)
	}

	if res, ok := m.paid[idempotencyKey]; ok {
		return res, nil
	}
	res := &Result{TransactionID: fmt.Sprintf("mock-txn-%d", len(m.paid)+1), Status: "accepted"}
	m.paid[idempotencyKey] = res
	return res, nil
}

// Paid 返回按幂等键去重后的真实打款笔数
func (m *MockClient) Paid() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.paid)
}

// CallCount 返回调用次数，包括失败与重复
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
