package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/internal/service"
	"HabitPact/pkg/response"
)

type archiveHabitRequest struct {
	UserID int64 `json:"user_id,string"`
}

// CreateHabit 新建习惯
// POST /v1/habits
func CreateHabit(ctx context.Context, c *app.RequestContext) {
	var req service.CreateHabitRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	habit, err := service.Habit().Create(ctx, req)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Created(ctx, c, habit)
}

// GetHabit 习惯详情，包含当前与最长连胜
// GET /v1/habits/:habit_id
func GetHabit(ctx context.Context, c *app.RequestContext) {
	habitID, err := pathID(c, "habit_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	habit, err := service.Habit().Get(ctx, habitID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, habit)
}

// ArchiveHabit 归档习惯
// POST /v1/habits/:habit_id/archive
func ArchiveHabit(ctx context.Context, c *app.RequestContext) {
	habitID, err := pathID(c, "habit_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req archiveHabitRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	habit, err := service.Habit().Archive(ctx, habitID, req.UserID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, habit)
}
