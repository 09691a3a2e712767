package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/internal/model"
	"HabitPact/internal/service"
	"HabitPact/pkg/response"
)

type operatorRequest struct {
	OperatorID int64 `json:"operator_id,string"`
}

// ListPendingLedger 等待打款确认的条目，status=failed 时列出被通道拒绝的欠付条目
// GET /v1/ops/ledger/pending?status&limit
func ListPendingLedger(ctx context.Context, c *app.RequestContext) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	status := model.LedgerStatus(c.Query("status"))
	if status == "" {
		status = model.LedgerPending
	}

	entries, err := service.Ledger().Pending(ctx, status, limit)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, entries, map[string]interface{}{
		"count":  len(entries),
		"status": status,
	})
}

// VerifyChallengeLedger 校验挑战账本是否平衡
// GET /v1/ops/challenges/:id/ledger
func VerifyChallengeLedger(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	ledger := service.Ledger()
	if err := ledger.VerifyChallenge(ctx, id); err != nil {
		response.Error(ctx, c, err)
		return
	}
	balance, err := ledger.ChallengeBalance(ctx, id)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]interface{}{"balance_cents": balance})
}

// ListAlerts 运营复核队列
// GET /v1/ops/alerts?include_resolved
func ListAlerts(ctx context.Context, c *app.RequestContext) {
	alerts, err := service.Settlement().ListAlerts(ctx, c.Query("include_resolved") == "true")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, alerts)
}

// ReleaseHold 人工复核后解除结算拦截
// POST /v1/ops/challenges/:id/release-hold
func ReleaseHold(ctx context.Context, c *app.RequestContext) {
	id, err := pathID(c, "id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req operatorRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	if err := service.Settlement().ReleaseHold(ctx, id, req.OperatorID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, map[string]interface{}{"released": true})
}

// ResolveAlert 关闭一条人工处理告警
// POST /v1/ops/alerts/:alert_id/resolve
func ResolveAlert(ctx context.Context, c *app.RequestContext) {
	alertID, err := pathID(c, "alert_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req operatorRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	alert, err := service.Settlement().ResolveAlert(ctx, alertID, req.OperatorID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, alert)
}

// Healthz 存活探针
// GET /healthz
func Healthz(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, map[string]interface{}{"status": "ok"})
}
