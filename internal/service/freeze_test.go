package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
)

func (f *fixture) giveTokens(h *model.Habit, n int) {
	f.t.Helper()

	id, err := f.deps.NextID()
	require.NoError(f.t, err)
	require.NoError(f.t, f.db.Create(&model.FreezeTokenBalance{
		BaseModel:      model.BaseModel{ID: id, CreatedAt: f.now, UpdatedAt: f.now},
		UserID:         h.UserID,
		HabitID:        h.ID,
		Balance:        n,
		LifetimeEarned: n,
	}).Error)
}

func TestConsumeFreezeBridgesMissedDay(t *testing.T) {
	f := newFixture(t)
	h := f.habit(10)
	f.giveTokens(h, 1)

	f.streakOf(h, 3)
	f.advance(2)

	ok, err := f.freezes().ConsumeFreeze(f.ctx, h.UserID, h.ID, f.day(-1))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, f.balance(h))

	var frozen model.CheckInLog
	require.NoError(t, f.db.Where("habit_id = ? AND check_in_date = ?", h.ID, f.day(-1)).Take(&frozen).Error)
	require.Equal(t, model.CheckInStatusFrozen, frozen.Status)
	require.Equal(t, 3, frozen.StreakCountAtLog)

	res, err := f.submit(h, f.day(0))
	require.NoError(t, err)
	require.Equal(t, 4, res.Streak)
}

func TestConsumeFreezeIsAppliedOnce(t *testing.T) {
	f := newFixture(t)
	h := f.habit(10)
	f.giveTokens(h, 2)

	f.streakOf(h, 2)
	f.advance(2)

	ok, err := f.freezes().ConsumeFreeze(f.ctx, h.UserID, h.ID, f.day(-1))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.freezes().ConsumeFreeze(f.ctx, h.UserID, h.ID, f.day(-1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, f.balance(h))
}

func TestConsumeFreezeNoOps(t *testing.T) {
	cases := []struct {
		name   string
		habit  func(*model.Habit)
		tokens int
		missed int
		setup  func(f *fixture, h *model.Habit)
	}{
		{name: "no tokens", tokens: 0, missed: -1},
		{name: "not yesterday", tokens: 1, missed: -2},
		{
			name:   "custom frequency",
			habit:  func(h *model.Habit) { h.Frequency = model.FrequencyCustom; h.PerWeekTarget = 1 },
			tokens: 1,
			missed: -1,
		},
		{
			name:   "already checked in after missed date",
			tokens: 1,
			missed: -1,
			setup: func(f *fixture, h *model.Habit) {
				_, err := f.submit(h, f.day(0))
				require.NoError(f.t, err)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			var mods []func(*model.Habit)
			if tc.habit != nil {
				mods = append(mods, tc.habit)
			}
			h := f.habit(10, mods...)
			if tc.tokens > 0 {
				f.giveTokens(h, tc.tokens)
			}
			f.streakOf(h, 3)
			f.advance(2)
			if tc.setup != nil {
				tc.setup(f, h)
			}

			ok, err := f.freezes().ConsumeFreeze(f.ctx, h.UserID, h.ID, f.day(tc.missed))
			require.NoError(t, err)
			require.False(t, ok)
			require.Equal(t, tc.tokens, f.balance(h))
		})
	}
}

func TestConsumeFreezeWithoutContinuingStreak(t *testing.T) {
	f := newFixture(t)
	h := f.habit(10)
	f.giveTokens(h, 1)

	f.streakOf(h, 3)
	f.advance(3)

	ok, err := f.freezes().ConsumeFreeze(f.ctx, h.UserID, h.ID, f.day(-1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, f.balance(h))
}

func TestConsumeFreezeSkipsWeekendForWeekdayHabit(t *testing.T) {
	f := newFixture(t)
	// 2026-03-16 是周一，昨天是周日
	f.now = time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)
	h := f.habit(10, func(h *model.Habit) { h.Frequency = model.FrequencyWeekdays })
	f.giveTokens(h, 1)

	_, err := f.submit(h, f.day(-3))
	require.NoError(t, err)

	ok, err := f.freezes().ConsumeFreeze(f.ctx, h.UserID, h.ID, f.day(-1))
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 1, f.balance(h))
}

func TestConsumeFreezeRejectsOtherUser(t *testing.T) {
	f := newFixture(t)
	h := f.habit(10)

	_, err := f.freezes().ConsumeFreeze(f.ctx, 99, h.ID, f.day(-1))
	require.ErrorIs(t, err, errors.HabitNotOwned)
}

func TestRestoreStreakAfterPayment(t *testing.T) {
	f := newFixture(t)
	h := f.habit(10)
	f.streakOf(h, 5)
	f.advance(3)
	f.payments.Confirm("pay-1")

	req := RestoreRequest{PaymentRef: "pay-1", UserID: h.UserID, HabitID: h.ID, ToValue: 5}
	r, err := f.freezes().RestoreStreak(f.ctx, req)
	require.NoError(t, err)
	require.Equal(t, 5, r.ToValue)

	got := f.reload(h)
	require.Equal(t, 5, got.CurrentStreak)
	require.True(t, got.LastCheckInDate.Equal(f.day(-1)))

	res, err := f.submit(h, f.day(0))
	require.NoError(t, err)
	require.Equal(t, 6, res.Streak)

	again, err := f.freezes().RestoreStreak(f.ctx, req)
	require.NoError(t, err)
	require.Equal(t, r.ID, again.ID)

	var n int64
	require.NoError(t, f.db.Model(&model.StreakRestoration{}).Count(&n).Error)
	require.EqualValues(t, 1, n)
}

func TestRestoreStreakRejections(t *testing.T) {
	f := newFixture(t)
	h := f.habit(10)
	f.streakOf(h, 3)
	f.advance(3)

	svc := f.freezes()

	_, err := svc.RestoreStreak(f.ctx, RestoreRequest{UserID: h.UserID, HabitID: h.ID, ToValue: 1})
	require.ErrorIs(t, err, errors.InvalidRequest)

	_, err = svc.RestoreStreak(f.ctx, RestoreRequest{PaymentRef: "unpaid", UserID: h.UserID, HabitID: h.ID, ToValue: 1})
	require.ErrorIs(t, err, errors.PaymentNotConfirmed)

	f.payments.Confirm("pay-2")
	_, err = svc.RestoreStreak(f.ctx, RestoreRequest{PaymentRef: "pay-2", UserID: h.UserID, HabitID: h.ID, ToValue: 4})
	require.ErrorIs(t, err, errors.StreakRestoreInvalid)

	f.payments.Err = fmt.Errorf("connection refused")
	_, err = svc.RestoreStreak(f.ctx, RestoreRequest{PaymentRef: "pay-3", UserID: h.UserID, HabitID: h.ID, ToValue: 1})
	require.ErrorIs(t, err, errors.BillingUnavailable)
}

func TestRestoreStreakRefusesWhenYesterdayLogged(t *testing.T) {
	f := newFixture(t)
	h := f.habit(10)
	f.streakOf(h, 3)
	f.advance(1)
	f.payments.Confirm("pay-1")

	_, err := f.freezes().RestoreStreak(f.ctx, RestoreRequest{PaymentRef: "pay-1", UserID: h.UserID, HabitID: h.ID, ToValue: 2})
	require.ErrorIs(t, err, errors.StreakRestoreInvalid)
}
