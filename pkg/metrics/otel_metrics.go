package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 引擎业务指标；nil 接收者上的方法都是空操作
type OTelMetrics struct {
	CheckInsTotal          metric.Int64Counter
	FreezesConsumedTotal   metric.Int64Counter
	ChallengeTransitions   metric.Int64Counter
	SettlementsTotal       metric.Int64Counter
	SettlementPoolCents    metric.Int64Counter
	IntegrityFailuresTotal metric.Int64Counter
	PayoutsTotal           metric.Int64Counter
	PayoutDuration         metric.Float64Histogram
	OutboxPublishedTotal   metric.Int64Counter
	OutboxLag              metric.Float64Histogram
}

var (
	metrics *OTelMetrics
	meter   = otel.Meter("habitpact")
)

// InitMetrics 初始化 OpenTelemetry 指标，须在 otel provider 设置之后调用
func InitMetrics() error {
	m := &OTelMetrics{}
	var err error

	if m.CheckInsTotal, err = meter.Int64Counter(
		"checkins_total",
		metric.WithDescription("Check-in submissions by result"),
		metric.WithUnit("{checkin}"),
	); err != nil {
		return err
	}

	if m.FreezesConsumedTotal, err = meter.Int64Counter(
		"freeze_tokens_consumed_total",
		metric.WithDescription("Freeze tokens consumed to protect a streak"),
		metric.WithUnit("{token}"),
	); err != nil {
		return err
	}

	if m.ChallengeTransitions, err = meter.Int64Counter(
		"challenge_transitions_total",
		metric.WithDescription("Challenge lifecycle transitions"),
		metric.WithUnit("{transition}"),
	); err != nil {
		return err
	}

	if m.SettlementsTotal, err = meter.Int64Counter(
		"settlements_total",
		metric.WithDescription("Settlements written by outcome"),
		metric.WithUnit("{settlement}"),
	); err != nil {
		return err
	}

	if m.SettlementPoolCents, err = meter.Int64Counter(
		"settlement_pool_cents_total",
		metric.WithDescription("Total settled pool amount in cents"),
		metric.WithUnit("{cents}"),
	); err != nil {
		return err
	}

	if m.IntegrityFailuresTotal, err = meter.Int64Counter(
		"settlement_integrity_failures_total",
		metric.WithDescription("Settlement attempts halted on integrity failure"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return err
	}

	if m.PayoutsTotal, err = meter.Int64Counter(
		"payouts_total",
		metric.WithDescription("Payout dispatch attempts by status"),
		metric.WithUnit("{payout}"),
	); err != nil {
		return err
	}

	if m.PayoutDuration, err = meter.Float64Histogram(
		"payout_duration_seconds",
		metric.WithDescription("Time spent calling the payout processor"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if m.OutboxPublishedTotal, err = meter.Int64Counter(
		"outbox_published_total",
		metric.WithDescription("Outbox events published by status"),
		metric.WithUnit("{event}"),
	); err != nil {
		return err
	}

	if m.OutboxLag, err = meter.Float64Histogram(
		"outbox_lag_seconds",
		metric.WithDescription("Delay between event creation and publication"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例，未初始化时返回 nil
func GetMetrics() *OTelMetrics {
	return metrics
}

// RecordCheckIn 记录打卡结果，reason 为拒绝时的错误码
func (m *OTelMetrics) RecordCheckIn(ctx context.Context, status, reason string) {
	if m == nil {
		return
	}
	m.CheckInsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
		attribute.String("reason", reason),
	))
}

func (m *OTelMetrics) RecordFreezeConsumed(ctx context.Context) {
	if m == nil {
		return
	}
	m.FreezesConsumedTotal.Add(ctx, 1)
}

func (m *OTelMetrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.ChallengeTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordSettlement 记录一次新写入的结算
func (m *OTelMetrics) RecordSettlement(ctx context.Context, outcome, stakeType string, poolCents int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("stake_type", stakeType),
	)
	m.SettlementsTotal.Add(ctx, 1, attrs)
	m.SettlementPoolCents.Add(ctx, poolCents, attrs)
}

func (m *OTelMetrics) RecordIntegrityFailure(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.IntegrityFailuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

func (m *OTelMetrics) RecordPayout(ctx context.Context, status string, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	m.PayoutsTotal.Add(ctx, 1, attrs)
	m.PayoutDuration.Record(ctx, seconds, attrs)
}

func (m *OTelMetrics) RecordOutboxPublish(ctx context.Context, eventType, status string, lagSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("status", status),
	)
	m.OutboxPublishedTotal.Add(ctx, 1, attrs)
	if status == "success" {
		m.OutboxLag.Record(ctx, lagSeconds, metric.WithAttributes(attribute.String("event_type", eventType)))
	}
}
