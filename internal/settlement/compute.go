// Package settlement 根据挑战的最终状态计算奖池的分配方案，纯函数
package settlement

import (
	"fmt"
	"sort"
	"time"

	"HabitPact/internal/model"
)

const bpsDenominator = 10000

// Participant 已付押金的参与者在截止时的状态
type Participant struct {
	JoinedAt    time.Time
	UserID      int64
	StakeCents  int64
	Completions int
}

// Input 结算输入
type Input struct {
	Outcome           model.ChallengeStatus
	StakeType         model.StakeType
	Currency          string
	Participants      []Participant
	ChallengeID       int64
	FeeBps            int64
	PlatformAccountID int64
	CharityAccountID  int64
	Target            int
}

// Line 一条出池的资金流，Amount 为正数
type Line struct {
	Type   model.LedgerEntryType `json:"type"`
	UserID int64                 `json:"user_id,string"`
	Amount int64                 `json:"amount_cents"`
}

// Plan 结算方案，Lines 之和恒等于 PoolCents
type Plan struct {
	Winners   []int64 `json:"winners"`
	Lines     []Line  `json:"lines"`
	PoolCents int64   `json:"pool_cents"`
	FeeCents  int64   `json:"fee_cents"`
}

// Fee 手续费向下取整到分
func Fee(pool, bps int64) int64 {
	if pool <= 0 || bps <= 0 {
		return 0
	}
	return pool * bps / bpsDenominator
}

// Compute 生成结算方案
func Compute(in Input) (*Plan, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	participants := byJoinOrder(in.Participants)

	plan := &Plan{Winners: []int64{}, Lines: []Line{}}
	for _, p := range participants {
		plan.PoolCents += p.StakeCents
	}

	if in.Outcome == model.ChallengeStatusCancelled {
		for _, p := range participants {
			plan.add(model.LedgerRefund, p.UserID, p.StakeCents)
		}
		return plan, plan.Validate()
	}

	plan.FeeCents = Fee(plan.PoolCents, in.FeeBps)
	plan.add(model.LedgerFee, in.PlatformAccountID, plan.FeeCents)
	distributable := plan.PoolCents - plan.FeeCents

	winners := make([]Participant, 0, len(participants))
	for _, p := range participants {
		if p.Completions >= in.Target {
			winners = append(winners, p)
			plan.Winners = append(plan.Winners, p.UserID)
		}
	}

	switch {
	case in.StakeType == model.StakeCharity:
		plan.add(model.LedgerPayout, in.CharityAccountID, distributable)

	case len(winners) == 0:
		// 无人完成：按押金比例退还扣费后的奖池
		for i, share := range proRata(distributable, participants) {
			plan.add(model.LedgerRefund, participants[i].UserID, share)
		}

	case in.StakeType == model.StakeWinnerTakesAll:
		for i, share := range evenSplit(distributable, len(winners)) {
			plan.add(model.LedgerPayout, winners[i].UserID, share)
		}

	case in.StakeType == model.StakeSplitWinners:
		for i, share := range proRata(distributable, winners) {
			refund := min(share, winners[i].StakeCents)
			plan.add(model.LedgerRefund, winners[i].UserID, refund)
			plan.add(model.LedgerWin, winners[i].UserID, share-refund)
		}
	}

	return plan, plan.Validate()
}

// Validate 方案资金守恒
func (p *Plan) Validate() error {
	var out int64
	for _, line := range p.Lines {
		if line.Amount <= 0 {
			return fmt.Errorf("settlement line for user %d has non-positive amount %d", line.UserID, line.Amount)
		}
		out += line.Amount
	}
	if out != p.PoolCents {
		return fmt.Errorf("settlement plan pays out %d but pool is %d", out, p.PoolCents)
	}
	return nil
}

// Total 某个用户在方案中收到的总额
func (p *Plan) Total(userID int64) int64 {
	var total int64
	for _, line := range p.Lines {
		if line.UserID == userID {
			total += line.Amount
		}
	}
	return total
}

// add 零金额不落账
func (p *Plan) add(t model.LedgerEntryType, userID, amount int64) {
	if amount <= 0 {
		return
	}
	p.Lines = append(p.Lines, Line{Type: t, UserID: userID, Amount: amount})
}

func validateInput(in Input) error {
	switch in.Outcome {
	case model.ChallengeStatusCompleted, model.ChallengeStatusExpired, model.ChallengeStatusCancelled:
	default:
		return fmt.Errorf("challenge outcome %q is not terminal", in.Outcome)
	}
	if !in.StakeType.Valid() {
		return fmt.Errorf("unknown stake type %q", in.StakeType)
	}
	if in.FeeBps < 0 || in.FeeBps > bpsDenominator {
		return fmt.Errorf("fee bps %d out of range", in.FeeBps)
	}
	seen := make(map[int64]struct{}, len(in.Participants))
	for _, p := range in.Participants {
		if p.StakeCents < 0 {
			return fmt.Errorf("participant %d has negative stake", p.UserID)
		}
		if _, ok := seen[p.UserID]; ok {
			return fmt.Errorf("participant %d listed twice", p.UserID)
		}
		seen[p.UserID] = struct{}{}
	}
	return nil
}

// byJoinOrder 加入时间升序，同一时刻按用户 ID，保证余数分配确定
func byJoinOrder(in []Participant) []Participant {
	out := make([]Participant, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// evenSplit 平均分配，余数给最早加入的一位
func evenSplit(amount int64, n int) []int64 {
	shares := make([]int64, n)
	if n == 0 {
		return shares
	}
	each := amount / int64(n)
	for i := range shares {
		shares[i] = each
	}
	shares[0] += amount - each*int64(n)
	return shares
}

// proRata 按押金比例分配，余数给最早加入的一位；押金全为 0 时退化为平均分配
func proRata(amount int64, ps []Participant) []int64 {
	var totalStake int64
	for _, p := range ps {
		totalStake += p.StakeCents
	}
	if totalStake == 0 {
		return evenSplit(amount, len(ps))
	}

	shares := make([]int64, len(ps))
	var assigned int64
	for i, p := range ps {
		shares[i] = amount * p.StakeCents / totalStake
		assigned += shares[i]
	}
	if len(shares) > 0 {
		shares[0] += amount - assigned
	}
	return shares
}
