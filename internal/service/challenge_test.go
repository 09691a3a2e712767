package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
)

// pact 已创建并全员付款的挑战，从明天开始
type pact struct {
	ch     *model.Challenge
	habits map[int64]*model.Habit
}

func (f *fixture) newChallenge(creator int64, typ model.ChallengeType, stake model.StakeType) *model.Challenge {
	f.t.Helper()

	ch, err := f.challenges().Create(f.ctx, CreateChallengeRequest{
		StartDate:         f.day(1),
		Title:             "five day sprint",
		Type:              typ,
		StakeType:         stake,
		CreatorID:         creator,
		StakeAmountCents:  1000,
		DurationDays:      5,
		TargetCompletions: 3,
	})
	require.NoError(f.t, err)
	return ch
}

func (f *fixture) newPact(stake model.StakeType, users ...int64) *pact {
	f.t.Helper()

	typ := model.ChallengeTypeGroup
	switch len(users) {
	case 1:
		typ = model.ChallengeTypeSolo
	case 2:
		typ = model.ChallengeType1v1
	}

	p := &pact{ch: f.newChallenge(users[0], typ, stake), habits: make(map[int64]*model.Habit)}
	svc := f.challenges()
	for _, u := range users {
		h := f.habit(u)
		p.habits[u] = h
		_, err := svc.Join(f.ctx, p.ch.ID, u, h.ID)
		require.NoError(f.t, err)

		ref := fmt.Sprintf("stake-%d-%d", p.ch.ID, u)
		f.payments.Confirm(ref)
		_, err = svc.ConfirmStake(f.ctx, p.ch.ID, u, ref)
		require.NoError(f.t, err)
	}
	return p
}

// start 拨到开始日并推进状态
func (f *fixture) start(p *pact) {
	f.t.Helper()

	f.advance(1)
	ch, err := f.challenges().Evaluate(f.ctx, p.ch.ID)
	require.NoError(f.t, err)
	p.ch = ch
}

// play 从开始日起逐日推进，done[u] 为用户 u 在前几天打卡
func (f *fixture) play(p *pact, done map[int64]int) {
	f.t.Helper()

	for day := 0; day < p.ch.DurationDays; day++ {
		for u, n := range done {
			if day < n {
				_, err := f.submit(p.habits[u], f.day(0))
				require.NoError(f.t, err)
			}
		}
		f.advance(1)
	}
}

func (f *fixture) challenge(id int64) *model.Challenge {
	f.t.Helper()

	var ch model.Challenge
	require.NoError(f.t, f.db.Where("id = ?", id).Take(&ch).Error)
	return &ch
}

func TestCreateChallengeValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.challenges()

	base := CreateChallengeRequest{
		StartDate:         f.day(1),
		Title:             "sprint",
		Type:              model.ChallengeTypeGroup,
		StakeType:         model.StakeWinnerTakesAll,
		CreatorID:         10,
		StakeAmountCents:  500,
		DurationDays:      7,
		TargetCompletions: 5,
	}

	ch, err := svc.Create(f.ctx, base)
	require.NoError(t, err)
	require.Equal(t, model.ChallengeStatusPending, ch.Status)
	require.Equal(t, "USD", ch.StakeCurrency)
	require.True(t, ch.EndDate.Equal(f.day(8)))

	cases := map[string]func(r *CreateChallengeRequest){
		"past start":        func(r *CreateChallengeRequest) { r.StartDate = f.day(-1) },
		"unknown type":      func(r *CreateChallengeRequest) { r.Type = "duel" },
		"unknown stake":     func(r *CreateChallengeRequest) { r.StakeType = "lottery" },
		"target > duration": func(r *CreateChallengeRequest) { r.TargetCompletions = 8 },
		"negative stake":    func(r *CreateChallengeRequest) { r.StakeAmountCents = -1 },
		"bad currency":      func(r *CreateChallengeRequest) { r.Currency = "EURO" },
		"missing title":     func(r *CreateChallengeRequest) { r.Title = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := base
			mutate(&req)
			_, err := svc.Create(f.ctx, req)
			require.ErrorIs(t, err, errors.ChallengeInvalid)
		})
	}
}

func TestJoinRules(t *testing.T) {
	f := newFixture(t)
	svc := f.challenges()
	ch := f.newChallenge(10, model.ChallengeType1v1, model.StakeWinnerTakesAll)

	h10 := f.habit(10)
	_, err := svc.Join(f.ctx, ch.ID, 10, h10.ID)
	require.NoError(t, err)

	_, err = svc.Join(f.ctx, ch.ID, 10, h10.ID)
	require.ErrorIs(t, err, errors.AlreadyJoined)

	h11 := f.habit(11)
	_, err = svc.Join(f.ctx, ch.ID, 12, h11.ID)
	require.ErrorIs(t, err, errors.HabitNotOwned)

	_, err = svc.Join(f.ctx, ch.ID, 11, h11.ID)
	require.NoError(t, err)

	h12 := f.habit(12)
	_, err = svc.Join(f.ctx, ch.ID, 12, h12.ID)
	require.ErrorIs(t, err, errors.ChallengeFull)

	_, err = svc.Join(f.ctx, 424242, 12, h12.ID)
	require.ErrorIs(t, err, errors.ChallengeNotFound)
}

func TestConfirmStakeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	svc := f.challenges()
	ch := f.newChallenge(10, model.ChallengeTypeSolo, model.StakeWinnerTakesAll)
	h := f.habit(10)
	_, err := svc.Join(f.ctx, ch.ID, 10, h.ID)
	require.NoError(t, err)

	_, err = svc.ConfirmStake(f.ctx, ch.ID, 10, "pay-x")
	require.ErrorIs(t, err, errors.PaymentNotConfirmed)

	f.payments.Confirm("pay-x")
	for i := 0; i < 2; i++ {
		p, err := svc.ConfirmStake(f.ctx, ch.ID, 10, "pay-x")
		require.NoError(t, err)
		require.True(t, p.StakePaid)
	}

	var stakes []model.LedgerEntry
	require.NoError(t, f.db.Where("related_challenge_id = ? AND type = ?", ch.ID, model.LedgerStake).Find(&stakes).Error)
	require.Len(t, stakes, 1)
	require.EqualValues(t, 1000, stakes[0].AmountCents)

	_, err = svc.ConfirmStake(f.ctx, ch.ID, 99, "pay-x")
	require.ErrorIs(t, err, errors.NotParticipant)
}

func TestStakeImmutableAfterPayment(t *testing.T) {
	f := newFixture(t)
	svc := f.challenges()
	ch := f.newChallenge(10, model.ChallengeTypeSolo, model.StakeWinnerTakesAll)

	require.NoError(t, svc.UpdateStake(f.ctx, ch.ID, 10, StakeUpdate{StakeAmountCents: 2000}))
	require.EqualValues(t, 2000, f.challenge(ch.ID).StakeAmountCents)

	require.ErrorIs(t, svc.UpdateStake(f.ctx, ch.ID, 11, StakeUpdate{StakeAmountCents: 1}), errors.StakeImmutable)

	h := f.habit(10)
	_, err := svc.Join(f.ctx, ch.ID, 10, h.ID)
	require.NoError(t, err)
	f.payments.Confirm("pay")
	_, err = svc.ConfirmStake(f.ctx, ch.ID, 10, "pay")
	require.NoError(t, err)

	require.ErrorIs(t, svc.UpdateStake(f.ctx, ch.ID, 10, StakeUpdate{StakeAmountCents: 3000}), errors.StakeImmutable)
}

func TestEvaluateActivatesOnStartDate(t *testing.T) {
	f := newFixture(t)
	p := f.newPact(model.StakeWinnerTakesAll, 10, 11)

	h := f.habit(12)
	_, err := f.challenges().Join(f.ctx, p.ch.ID, 12, h.ID)
	require.ErrorIs(t, err, errors.ChallengeFull)

	ch, err := f.challenges().Evaluate(f.ctx, p.ch.ID)
	require.NoError(t, err)
	require.Equal(t, model.ChallengeStatusPending, ch.Status)

	f.start(p)
	require.Equal(t, model.ChallengeStatusActive, p.ch.Status)
	require.NotNil(t, p.ch.ActivatedAt)

	_, err = f.challenges().Join(f.ctx, p.ch.ID, 12, h.ID)
	require.ErrorIs(t, err, errors.ChallengeNotJoinable)
}

func TestEvaluateCancelsWhenTooFewPaid(t *testing.T) {
	f := newFixture(t)
	svc := f.challenges()
	ch := f.newChallenge(10, model.ChallengeTypeGroup, model.StakeWinnerTakesAll)

	for _, u := range []int64{10, 11} {
		h := f.habit(u)
		_, err := svc.Join(f.ctx, ch.ID, u, h.ID)
		require.NoError(t, err)
	}
	f.payments.Confirm("only-one")
	_, err := svc.ConfirmStake(f.ctx, ch.ID, 10, "only-one")
	require.NoError(t, err)

	f.advance(1)
	got, err := svc.Evaluate(f.ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, model.ChallengeStatusCancelled, got.Status)

	var dropped model.ChallengeParticipant
	require.NoError(t, f.db.Where("challenge_id = ? AND user_id = ?", ch.ID, 11).Take(&dropped).Error)
	require.Equal(t, model.ParticipantDropped, dropped.Status)

	var refunds []model.LedgerEntry
	require.NoError(t, f.db.Where("related_challenge_id = ? AND type = ?", ch.ID, model.LedgerRefund).Find(&refunds).Error)
	require.Len(t, refunds, 1)
	require.EqualValues(t, -1000, refunds[0].AmountCents)
	require.Equal(t, model.LedgerPending, refunds[0].Status)

	require.NoError(t, f.ledger().VerifyChallenge(f.ctx, ch.ID))
}

func TestCancelBeforeStart(t *testing.T) {
	f := newFixture(t)
	svc := f.challenges()

	ch := f.newChallenge(10, model.ChallengeTypeGroup, model.StakeSplitWinners)
	_, err := svc.Cancel(f.ctx, ch.ID, 11)
	require.ErrorIs(t, err, errors.ChallengeNotCancellable)

	got, err := svc.Cancel(f.ctx, ch.ID, 10)
	require.NoError(t, err)
	require.Equal(t, model.ChallengeStatusCancelled, got.Status)

	var record model.SettlementRecord
	require.NoError(t, f.db.Where("challenge_id = ?", ch.ID).Take(&record).Error)
	require.Zero(t, record.PoolCents)

	paid := f.newPact(model.StakeWinnerTakesAll, 20, 21)
	_, err = svc.Cancel(f.ctx, paid.ch.ID, 20)
	require.ErrorIs(t, err, errors.ChallengeNotCancellable)
}

func TestEarlyCompletionWhenEveryoneQualifies(t *testing.T) {
	f := newFixture(t)
	p := f.newPact(model.StakeSplitWinners, 10, 11)
	f.start(p)

	svc := f.challenges()
	for day := 0; day < 3; day++ {
		for _, u := range []int64{10, 11} {
			res, err := f.submit(p.habits[u], f.day(0))
			require.NoError(t, err)
			require.NoError(t, svc.ApplyCheckIn(f.ctx, acceptedEvent(res.Log)))
		}
		if day < 2 {
			f.advance(1)
		}
	}

	ch := f.challenge(p.ch.ID)
	require.Equal(t, model.ChallengeStatusCompleted, ch.Status)
	require.NotNil(t, ch.EndedAt)

	var parts []model.ChallengeParticipant
	require.NoError(t, f.db.Where("challenge_id = ?", p.ch.ID).Find(&parts).Error)
	for _, part := range parts {
		require.Equal(t, 3, part.Completions)
	}
}

func TestApplyCheckInCountsEachLogOnce(t *testing.T) {
	f := newFixture(t)
	p := f.newPact(model.StakeWinnerTakesAll, 10, 11)
	f.start(p)

	res, err := f.submit(p.habits[10], f.day(0))
	require.NoError(t, err)

	svc := f.challenges()
	ev := acceptedEvent(res.Log)
	require.NoError(t, svc.ApplyCheckIn(f.ctx, ev))
	require.NoError(t, svc.ApplyCheckIn(f.ctx, ev))

	var part model.ChallengeParticipant
	require.NoError(t, f.db.Where("challenge_id = ? AND user_id = ?", p.ch.ID, 10).Take(&part).Error)
	require.Equal(t, 1, part.Completions)
}

func TestDeadlineOutcome(t *testing.T) {
	cases := []struct {
		name string
		done map[int64]int
		want model.ChallengeStatus
	}{
		{"some qualify", map[int64]int{10: 3, 11: 1}, model.ChallengeStatusCompleted},
		{"nobody qualifies", map[int64]int{10: 2, 11: 2}, model.ChallengeStatusExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			p := f.newPact(model.StakeWinnerTakesAll, 10, 11)
			f.start(p)
			f.play(p, tc.done)

			ch, err := f.challenges().Evaluate(f.ctx, p.ch.ID)
			require.NoError(t, err)
			require.Equal(t, tc.want, ch.Status)
		})
	}
}

func TestBackfillAfterDeadlineDoesNotCount(t *testing.T) {
	f := newFixture(t)
	p := f.newPact(model.StakeWinnerTakesAll, 10, 11)
	f.start(p)
	f.play(p, map[int64]int{10: 3, 11: 2})

	// 截止后、调度推进前补一天窗口内的打卡
	res, err := f.submit(p.habits[11], p.ch.StartDate.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Equal(t, CheckInAccepted, res.Status)

	svc := f.challenges()
	require.NoError(t, svc.ApplyCheckIn(f.ctx, acceptedEvent(res.Log)))
	var part model.ChallengeParticipant
	require.NoError(t, f.db.Where("challenge_id = ? AND user_id = ?", p.ch.ID, 11).Take(&part).Error)
	require.Zero(t, part.Completions)

	ch, err := svc.Evaluate(f.ctx, p.ch.ID)
	require.NoError(t, err)
	require.Equal(t, model.ChallengeStatusCompleted, ch.Status)

	var payouts []model.LedgerEntry
	require.NoError(t, f.db.Where("related_challenge_id = ? AND type = ?", p.ch.ID, model.LedgerPayout).Find(&payouts).Error)
	require.Len(t, payouts, 1)
	require.EqualValues(t, 10, payouts[0].UserID)
}

func TestEvaluateTerminalIsNoop(t *testing.T) {
	f := newFixture(t)
	p := f.newPact(model.StakeWinnerTakesAll, 10, 11)
	f.start(p)
	f.play(p, map[int64]int{10: 3})

	svc := f.challenges()
	first, err := svc.Evaluate(f.ctx, p.ch.ID)
	require.NoError(t, err)
	second, err := svc.Evaluate(f.ctx, p.ch.ID)
	require.NoError(t, err)
	require.Equal(t, first.Status, second.Status)
	require.Equal(t, first.EndedAt.Unix(), second.EndedAt.Unix())

	var records int64
	require.NoError(t, f.db.Model(&model.SettlementRecord{}).Where("challenge_id = ?", p.ch.ID).Count(&records).Error)
	require.EqualValues(t, 1, records)
}

func TestDueForEvaluation(t *testing.T) {
	f := newFixture(t)
	upcoming := f.newPact(model.StakeWinnerTakesAll, 10, 11)

	ids, err := f.challenges().DueForEvaluation(f.ctx, 10)
	require.NoError(t, err)
	require.Empty(t, ids)

	f.advance(1)
	ids, err = f.challenges().DueForEvaluation(f.ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{upcoming.ch.ID}, ids)
}
