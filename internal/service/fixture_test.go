package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/internal/testutil"
	"HabitPact/pkg/billing"
	"HabitPact/pkg/payout"
	"HabitPact/pkg/snowflake"
)

const (
	platformAccount int64 = 1
	charityAccount  int64 = 2
)

// fixture 共享同一个内存库与可拨动的时钟
type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	now      time.Time
	deps     Deps
	payments *billing.MockVerifier
	payouts  *payout.MockClient
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1, 1)
	require.NoError(t, err)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       testutil.NewTestDB(t),
		now:      time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		payments: billing.NewMockVerifier(),
		payouts:  payout.NewMockClient(),
	}
	f.deps = Deps{
		DB:     f.db,
		Now:    func() time.Time { return f.now },
		NextID: snowflake.Generator(node),
		Policy: Policy{
			Loc:               time.UTC,
			Currency:          "USD",
			MaxBackfillDays:   7,
			Quorum:            1,
			FreezeMax:         3,
			FreezeEvery:       7,
			FeeBps:            700,
			PlatformAccountID: platformAccount,
			CharityAccountID:  charityAccount,
			PayoutMaxAttempts: 3,
			PayoutTimeout:     time.Second,
		},
	}
	return f
}

func (f *fixture) checkIns() *CheckInService {
	return NewCheckInService(f.deps)
}

func (f *fixture) freezes() *FreezeService {
	return NewFreezeService(f.deps, f.payments)
}

func (f *fixture) settlements() *SettlementService {
	return NewSettlementService(f.deps)
}

func (f *fixture) challenges() *ChallengeService {
	return NewChallengeService(f.deps, f.settlements(), f.payments)
}

func (f *fixture) ledger() *LedgerService {
	return NewLedgerService(f.deps)
}

func (f *fixture) payoutService() *PayoutService {
	svc := NewPayoutService(f.deps, f.payouts, cache.NewLocalLocker())
	svc.InitialInterval = time.Millisecond
	return svc
}

// day 相对 fixture 当前日期偏移 offset 天的日历日期
func (f *fixture) day(offset int) time.Time {
	return f.deps.today().AddDate(0, 0, offset)
}

// advance 把时钟拨到 offset 天后的同一时刻
func (f *fixture) advance(days int) {
	f.now = f.now.AddDate(0, 0, days)
}

func (f *fixture) habit(userID int64, mods ...func(*model.Habit)) *model.Habit {
	f.t.Helper()

	id, err := f.deps.NextID()
	require.NoError(f.t, err)
	h := &model.Habit{
		BaseModel:        model.BaseModel{ID: id, CreatedAt: f.now, UpdatedAt: f.now},
		Name:             "read",
		Frequency:        model.FrequencyDaily,
		VerificationMode: model.VerificationSelf,
		UserID:           userID,
	}
	for _, mod := range mods {
		mod(h)
	}
	require.NoError(f.t, f.db.Create(h).Error)
	return h
}

func (f *fixture) reload(h *model.Habit) *model.Habit {
	f.t.Helper()

	var got model.Habit
	require.NoError(f.t, f.db.Where("id = ?", h.ID).Take(&got).Error)
	return &got
}

func (f *fixture) submit(h *model.Habit, date time.Time) (*CheckInResult, error) {
	return f.checkIns().Submit(f.ctx, SubmitRequest{Date: date, HabitID: h.ID, UserID: h.UserID})
}

// streakOf 连续打卡 n 天，最后一天是今天
func (f *fixture) streakOf(h *model.Habit, n int) {
	f.t.Helper()

	start := f.now
	f.now = f.now.AddDate(0, 0, -(n - 1))
	for i := 0; i < n; i++ {
		_, err := f.submit(h, f.deps.today())
		require.NoError(f.t, err)
		if i < n-1 {
			f.advance(1)
		}
	}
	require.Equal(f.t, start, f.now)
}

func (f *fixture) outbox(eventType string) []model.OutboxEvent {
	f.t.Helper()

	var events []model.OutboxEvent
	require.NoError(f.t, f.db.Where("event_type = ?", eventType).Order("id ASC").Find(&events).Error)
	return events
}

func (f *fixture) balance(h *model.Habit) int {
	f.t.Helper()

	bal, err := f.freezes().Balance(f.ctx, h.UserID, h.ID)
	require.NoError(f.t, err)
	return bal.Balance
}
