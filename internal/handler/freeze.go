package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/internal/service"
	"HabitPact/pkg/response"
)

type consumeFreezeRequest struct {
	MissedDate string `json:"missed_date"`
	UserID     int64  `json:"user_id,string"`
}

type restoreRequest struct {
	PaymentRef string `json:"payment_ref"`
	UserID     int64  `json:"user_id,string"`
	ToValue    int    `json:"to_value"`
}

// ConsumeFreeze 用冻结卡保住昨天漏掉的打卡
// POST /v1/habits/:habit_id/freeze
func ConsumeFreeze(ctx context.Context, c *app.RequestContext) {
	habitID, err := pathID(c, "habit_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req consumeFreezeRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	missed, err := parseDate(req.MissedDate, "missed_date")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	consumed, err := service.Freeze().ConsumeFreeze(ctx, req.UserID, habitID, missed)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]interface{}{"consumed": consumed})
}

// GetFreezeBalance 冻结卡余额
// GET /v1/habits/:habit_id/freeze?user_id
func GetFreezeBalance(ctx context.Context, c *app.RequestContext) {
	habitID, err := pathID(c, "habit_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	userID, err := parseID(c.Query("user_id"), "user_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	balance, err := service.Freeze().Balance(ctx, userID, habitID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, balance)
}

// RestoreStreak 付费恢复连胜
// POST /v1/habits/:habit_id/restore
func RestoreStreak(ctx context.Context, c *app.RequestContext) {
	habitID, err := pathID(c, "habit_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req restoreRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	restoration, err := service.Freeze().RestoreStreak(ctx, service.RestoreRequest{
		PaymentRef: req.PaymentRef,
		UserID:     req.UserID,
		HabitID:    habitID,
		ToValue:    req.ToValue,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, restoration)
}
