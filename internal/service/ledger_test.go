package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
)

func TestListByUserPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		ch := f.newChallenge(10, model.ChallengeTypeSolo, model.StakeWinnerTakesAll)
		h := f.habit(10)
		_, err := f.challenges().Join(f.ctx, ch.ID, 10, h.ID)
		require.NoError(t, err)
		ref := fmt.Sprintf("pay-%d", i)
		f.payments.Confirm(ref)
		_, err = f.challenges().ConfirmStake(f.ctx, ch.ID, 10, ref)
		require.NoError(t, err)
	}

	svc := f.ledger()
	page, err := svc.ListByUser(f.ctx, 10, LedgerQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	require.NotZero(t, page.NextCursor)
	require.Greater(t, page.Entries[0].ID, page.Entries[1].ID)

	seen := len(page.Entries)
	for page.NextCursor != 0 {
		page, err = svc.ListByUser(f.ctx, 10, LedgerQuery{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		seen += len(page.Entries)
	}
	require.Equal(t, 5, seen)

	page, err = svc.ListByUser(f.ctx, 10, LedgerQuery{Type: model.LedgerRefund})
	require.NoError(t, err)
	require.Empty(t, page.Entries)
}

func TestVerifyChallengeDetectsImbalance(t *testing.T) {
	f := newFixture(t)
	p := f.newPact(model.StakeWinnerTakesAll, 10, 11)
	f.start(p)
	f.play(p, map[int64]int{10: 3})
	_, err := f.challenges().Evaluate(f.ctx, p.ch.ID)
	require.NoError(t, err)

	svc := f.ledger()
	require.NoError(t, svc.VerifyChallenge(f.ctx, p.ch.ID))

	require.NoError(t, f.db.Model(&model.LedgerEntry{}).
		Where("related_challenge_id = ? AND type = ?", p.ch.ID, model.LedgerFee).
		Update("amount_cents", -1).Error)
	require.ErrorIs(t, svc.VerifyChallenge(f.ctx, p.ch.ID), errors.LedgerNotBalanced)
}

func TestPendingOldestFirst(t *testing.T) {
	f := newFixture(t)
	p := f.newPact(model.StakeSplitWinners, 10, 11)
	f.start(p)
	f.play(p, map[int64]int{10: 3, 11: 3})
	_, err := f.challenges().Evaluate(f.ctx, p.ch.ID)
	require.NoError(t, err)

	pending, err := f.ledger().Pending(f.ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	for _, e := range pending {
		require.Equal(t, model.LedgerRefund, e.Type)
		require.EqualValues(t, -930, e.AmountCents)
	}
}
