package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/internal/model"
	"HabitPact/internal/service"
	"HabitPact/pkg/response"
)

type createChallengeRequest struct {
	StartDate         string              `json:"start_date"`
	Title             string              `json:"title"`
	Type              model.ChallengeType `json:"type"`
	StakeType         model.StakeType     `json:"stake_type"`
	Currency          string              `json:"currency"`
	CreatorID         int64               `json:"creator_id,string"`
	StakeAmountCents  int64               `json:"stake_amount_cents"`
	DurationDays      int                 `json:"duration_days"`
	TargetCompletions int                 `json:"target_completions"`
}

type joinChallengeRequest struct {
	UserID  int64 `json:"user_id,string"`
	HabitID int64 `json:"habit_id,string"`
}

type confirmStakeRequest struct {
	PaymentRef string `json:"payment_ref"`
	UserID     int64  `json:"user_id,string"`
}

type updateStakeRequest struct {
	StakeType        model.StakeType `json:"stake_type"`
	ActorID          int64           `json:"actor_id,string"`
	StakeAmountCents int64           `json:"stake_amount_cents"`
}

type actorRequest struct {
	ActorID int64 `json:"actor_id,string"`
}

// CreateChallenge 创建挑战
// POST /v1/challenges
func CreateChallenge(ctx context.Context, c *app.RequestContext) {
	var req createChallengeRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	start, err := parseDate(req.StartDate, "start_date")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	ch, err := service.Challenge().Create(ctx, service.CreateChallengeRequest{
		StartDate:         start,
		Title:             req.Title,
		Type:              req.Type,
		StakeType:         req.StakeType,
		Currency:          req.Currency,
		CreatorID:         req.CreatorID,
		StakeAmountCents:  req.StakeAmountCents,
		DurationDays:      req.DurationDays,
		TargetCompletions: req.TargetCompletions,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, ch)
}

// GetChallenge 挑战详情与参与者进度
// GET /v1/challenges/:id
func GetChallenge(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	detail, err := service.Challenge().Get(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, detail)
}

// JoinChallenge 开始前加入挑战并绑定习惯
// POST /v1/challenges/:id/join
func JoinChallenge(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req joinChallengeRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	participant, err := service.Challenge().Join(ctx, id, req.UserID, req.HabitID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, participant)
}

// ConfirmStake 支付确认后记入押金
// POST /v1/challenges/:id/stake
func ConfirmStake(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req confirmStakeRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	participant, err := service.Challenge().ConfirmStake(ctx, id, req.UserID, req.PaymentRef)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, participant)
}

// UpdateStake 开始前由创建者修改押金条款
// PATCH /v1/challenges/:id/stake
func UpdateStake(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req updateStakeRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if err := service.Challenge().UpdateStake(ctx, id, req.ActorID, service.StakeUpdate{
		StakeType:        req.StakeType,
		StakeAmountCents: req.StakeAmountCents,
	}); err != nil {
		response.Error(ctx, c, err)
		return
	}
	GetChallenge(ctx, c)
}

// CancelChallenge 开始前取消，已付押金全额退还
// POST /v1/challenges/:id/cancel
func CancelChallenge(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req actorRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	ch, err := service.Challenge().Cancel(ctx, id, req.ActorID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, ch)
}

// SettleChallenge 结算已结束的挑战，重复调用返回首次结果
// POST /v1/challenges/:id/settle
func SettleChallenge(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	result, err := service.Settlement().Settle(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}
