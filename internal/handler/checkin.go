package handler

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"

	"HabitPact/internal/model"
	"HabitPact/internal/service"
	"HabitPact/pkg/errors"
	"HabitPact/pkg/response"
)

type proofPayload struct {
	Type       string `json:"type"`
	PayloadRef string `json:"payload_ref"`
	Text       string `json:"text"`
}

type submitCheckInRequest struct {
	Proof   *proofPayload `json:"proof"`
	Date    string        `json:"date"`
	HabitID int64         `json:"habit_id,string"`
	UserID  int64         `json:"user_id,string"`
}

type verifyRequest struct {
	VerifierID int64 `json:"verifier_id,string"`
}

type disputeRequest struct {
	Reason string `json:"reason"`
	UserID int64  `json:"user_id,string"`
}

// SubmitCheckIn 提交一次打卡。业务拒绝以 200 返回 status=rejected，由 reason 说明原因
// POST /v1/check-ins
func SubmitCheckIn(ctx context.Context, c *app.RequestContext) {
	var req submitCheckInRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	date, err := parseDate(req.Date, "date")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	var proof model.Proof
	if req.Proof != nil {
		proof, err = model.NewProof(req.Proof.Type, req.Proof.PayloadRef, req.Proof.Text)
		if err != nil {
			response.Error(ctx, c, fmt.Errorf("%w: %v", errors.InvalidProof, err))
			return
		}
	}

	result, err := service.CheckIn().Submit(ctx, service.SubmitRequest{
		Date:    date,
		Proof:   proof,
		HabitID: req.HabitID,
		UserID:  req.UserID,
	})
	if err != nil && (result == nil || result.Status != service.CheckInRejected) {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, result)
}

// VerifyCheckIn 伙伴确认一条待确认的打卡
// POST /v1/check-ins/:log_id/verify
func VerifyCheckIn(ctx context.Context, c *app.RequestContext) {
	logID, err := pathID(c, "log_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	log, err := service.CheckIn().Verify(ctx, logID, req.VerifierID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, log)
}

// DisputeCheckIn 达到法定人数前对打卡提出异议
// POST /v1/check-ins/:log_id/dispute
func DisputeCheckIn(ctx context.Context, c *app.RequestContext) {
	logID, err := pathID(c, "log_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	var req disputeRequest
	if err := c.Bind(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	log, err := service.CheckIn().Dispute(ctx, logID, req.UserID, req.Reason)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, log)
}

// GetCheckInHistory 习惯在日期区间内的打卡记录
// GET /v1/habits/:habit_id/check-ins?from&to
func GetCheckInHistory(ctx context.Context, c *app.RequestContext) {
	habitID, err := pathID(c, "habit_id")
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	from, to, err := historyRange(c)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	logs, err := service.CheckIn().History(ctx, habitID, from, to)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.SuccessWithMeta(ctx, c, logs, map[string]interface{}{
		"from": from.Format(model.DateLayout),
		"to":   to.Format(model.DateLayout),
	})
}
