package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"HabitPact/internal/model"
)

const (
	platformID = 9001
	charityID  = 9002
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func participants(completions ...int) []Participant {
	out := make([]Participant, len(completions))
	for i, c := range completions {
		out[i] = Participant{
			UserID:      int64(i + 1),
			JoinedAt:    base.Add(time.Duration(i) * time.Minute),
			StakeCents:  1000,
			Completions: c,
		}
	}
	return out
}

func input(outcome model.ChallengeStatus, stake model.StakeType, ps []Participant) Input {
	return Input{
		ChallengeID:       42,
		Outcome:           outcome,
		StakeType:         stake,
		Currency:          "USD",
		Target:            10,
		FeeBps:            700,
		PlatformAccountID: platformID,
		CharityAccountID:  charityID,
		Participants:      ps,
	}
}

func linesOf(plan *Plan, t model.LedgerEntryType) []Line {
	var out []Line
	for _, l := range plan.Lines {
		if l.Type == t {
			out = append(out, l)
		}
	}
	return out
}

func TestFeeFloorsToCents(t *testing.T) {
	require.Equal(t, int64(210), Fee(3000, 700))
	require.Equal(t, int64(0), Fee(14, 700))
	require.Equal(t, int64(1), Fee(15, 700))
	require.Equal(t, int64(0), Fee(3000, 0))
}

func TestWinnerTakesAllSingleWinner(t *testing.T) {
	plan, err := Compute(input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, participants(10, 4, 0)))
	require.NoError(t, err)

	require.Equal(t, int64(3000), plan.PoolCents)
	require.Equal(t, int64(210), plan.FeeCents)
	require.Equal(t, []int64{1}, plan.Winners)

	payouts := linesOf(plan, model.LedgerPayout)
	require.Len(t, payouts, 1)
	require.Equal(t, int64(1), payouts[0].UserID)
	require.Equal(t, int64(2790), payouts[0].Amount)

	fees := linesOf(plan, model.LedgerFee)
	require.Len(t, fees, 1)
	require.Equal(t, int64(platformID), fees[0].UserID)

	require.NoError(t, plan.Validate())
}

func TestWinnerTakesAllRemainderToEarliestJoined(t *testing.T) {
	ps := participants(10, 10, 10, 0)
	// 用户 3 最早加入
	ps[2].JoinedAt = base.Add(-time.Hour)

	plan, err := Compute(input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, ps))
	require.NoError(t, err)

	// 4000 - 280 = 3720，三人均分 1240，无余数
	require.Equal(t, int64(1240), plan.Total(1))

	ps = participants(10, 10, 10)
	ps[2].JoinedAt = base.Add(-time.Hour)
	ps[0].StakeCents = 1001
	plan, err = Compute(input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, ps))
	require.NoError(t, err)

	// 3001 - 210 = 2791，930 * 3 余 1
	require.Equal(t, int64(931), plan.Total(3))
	require.Equal(t, int64(930), plan.Total(1))
	require.Equal(t, int64(930), plan.Total(2))
}

func TestJoinTieBrokenByUserID(t *testing.T) {
	ps := participants(10, 10)
	ps[0].JoinedAt = base
	ps[1].JoinedAt = base
	ps[1].StakeCents = 1001

	plan, err := Compute(input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, ps))
	require.NoError(t, err)

	// 2001 - 140 = 1861，余数给用户 1
	require.Equal(t, int64(931), plan.Total(1))
	require.Equal(t, int64(930), plan.Total(2))
}

func TestSplitWinnersRefundsStakeAndSharesForfeits(t *testing.T) {
	plan, err := Compute(input(model.ChallengeStatusCompleted, model.StakeSplitWinners, participants(10, 12, 3)))
	require.NoError(t, err)

	// 3000 - 210 = 2790，两位赢家各 1395：退本金 1000，奖金 395
	for _, userID := range []int64{1, 2} {
		require.Equal(t, int64(1395), plan.Total(userID))
	}
	require.Equal(t, int64(0), plan.Total(3))
	require.Len(t, linesOf(plan, model.LedgerRefund), 2)
	require.Len(t, linesOf(plan, model.LedgerWin), 2)
	require.Equal(t, int64(395), linesOf(plan, model.LedgerWin)[0].Amount)
}

func TestSplitWinnersAllFinishBearFee(t *testing.T) {
	plan, err := Compute(input(model.ChallengeStatusCompleted, model.StakeSplitWinners, participants(10, 10, 10)))
	require.NoError(t, err)

	require.Empty(t, linesOf(plan, model.LedgerWin))
	require.Equal(t, int64(930), plan.Total(1))
	require.NoError(t, plan.Validate())
}

func TestCharityReceivesPoolRegardlessOfOutcome(t *testing.T) {
	for _, outcome := range []model.ChallengeStatus{model.ChallengeStatusCompleted, model.ChallengeStatusExpired} {
		plan, err := Compute(input(outcome, model.StakeCharity, participants(10, 0, 0)))
		require.NoError(t, err)

		payouts := linesOf(plan, model.LedgerPayout)
		require.Len(t, payouts, 1)
		require.Equal(t, int64(charityID), payouts[0].UserID)
		require.Equal(t, int64(2790), payouts[0].Amount)
		require.Equal(t, int64(0), plan.Total(1))
	}
}

func TestCancelledRefundsInFullWithoutFee(t *testing.T) {
	for _, stake := range []model.StakeType{model.StakeWinnerTakesAll, model.StakeSplitWinners, model.StakeCharity} {
		plan, err := Compute(input(model.ChallengeStatusCancelled, stake, participants(0, 0, 0)))
		require.NoError(t, err)

		require.Equal(t, int64(0), plan.FeeCents)
		require.Empty(t, linesOf(plan, model.LedgerFee))
		for _, userID := range []int64{1, 2, 3} {
			require.Equal(t, int64(1000), plan.Total(userID))
		}
	}
}

func TestExpiredWithoutWinnersRefundsNetOfFee(t *testing.T) {
	plan, err := Compute(input(model.ChallengeStatusExpired, model.StakeWinnerTakesAll, participants(1, 2, 3)))
	require.NoError(t, err)

	require.Empty(t, plan.Winners)
	require.Equal(t, int64(210), plan.FeeCents)
	require.Equal(t, int64(930), plan.Total(1))
	require.Equal(t, int64(930), plan.Total(2))
	require.Equal(t, int64(930), plan.Total(3))
}

func TestZeroStakeProducesNoLines(t *testing.T) {
	ps := participants(10, 0)
	for i := range ps {
		ps[i].StakeCents = 0
	}
	plan, err := Compute(input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, ps))
	require.NoError(t, err)
	require.Empty(t, plan.Lines)
	require.Equal(t, []int64{1}, plan.Winners)
}

func TestComputeRejectsBadInput(t *testing.T) {
	_, err := Compute(input(model.ChallengeStatusActive, model.StakeWinnerTakesAll, participants(1)))
	require.Error(t, err)

	_, err = Compute(input(model.ChallengeStatusCompleted, model.StakeType("lottery"), participants(1)))
	require.Error(t, err)

	ps := participants(1, 1)
	ps[1].UserID = ps[0].UserID
	_, err = Compute(input(model.ChallengeStatusCompleted, model.StakeWinnerTakesAll, ps))
	require.Error(t, err)
}

func TestPlanAlwaysConservesPool(t *testing.T) {
	stakes := []model.StakeType{model.StakeWinnerTakesAll, model.StakeSplitWinners, model.StakeCharity}
	outcomes := []model.ChallengeStatus{model.ChallengeStatusCompleted, model.ChallengeStatusExpired, model.ChallengeStatusCancelled}

	for _, stake := range stakes {
		for _, outcome := range outcomes {
			for n := 1; n <= 7; n++ {
				ps := make([]Participant, n)
				for i := range ps {
					ps[i] = Participant{
						UserID:      int64(i + 1),
						JoinedAt:    base.Add(time.Duration(n-i) * time.Second),
						StakeCents:  int64(997 + 13*i),
						Completions: (i * 7) % 12,
					}
				}
				plan, err := Compute(input(outcome, stake, ps))
				require.NoError(t, err)
				require.NoError(t, plan.Validate())
			}
		}
	}
}
