package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/internal/model"
	"HabitPact/internal/service"
	"HabitPact/pkg/response"
)

// ListUserLedger 用户账本只读导出，按 cursor 向前翻页
// GET /v1/users/:user_id/ledger?cursor&limit&type
func ListUserLedger(ctx context.Context, c *app.RequestContext) {
	userID, err := pathID(c, "user_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	cursor, err := queryID(c, "cursor")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	page, err := service.Ledger().ListByUser(ctx, userID, service.LedgerQuery{
		Type:   model.LedgerEntryType(c.Query("type")),
		Cursor: cursor,
		Limit:  limit,
	})
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, page)
}
