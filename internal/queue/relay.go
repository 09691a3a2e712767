package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitPact/internal/model"
	"HabitPact/pkg/logger"
	"HabitPact/pkg/metrics"
	"HabitPact/storage/database"
	"HabitPact/storage/mq"
)

const defaultFlushBatch = 100

// Publisher 消息发布，mq.Publisher 是生产实现
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error
}

// Relay 把 outbox 中未投递的事件按写入顺序发布到 events.topic，
// 事件类型即 routing key。投递至少一次，消费端按 message_id 去重
type Relay struct {
	DB        *gorm.DB
	Publisher Publisher
	Logger    *zap.Logger
	Metrics   *metrics.OTelMetrics
	Now       func() time.Time
	Exchange  string
}

func NewRelay(db *gorm.DB, pub Publisher) *Relay {
	return &Relay{
		DB:        db,
		Publisher: pub,
		Logger:    logger.Named("outbox_relay"),
		Metrics:   metrics.GetMetrics(),
		Now:       time.Now,
		Exchange:  mq.EventsExchange,
	}
}

// DefaultRelay 使用全局数据库与 MQ 连接
func DefaultRelay() *Relay {
	return NewRelay(database.DB(), mq.Publisher{})
}

// Flush 投递至多 batch 条事件，遇到发布失败即停止本轮以保持顺序
func (r *Relay) Flush(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = defaultFlushBatch
	}

	var events []model.OutboxEvent
	if err := r.DB.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(batch).
		Find(&events).Error; err != nil {
		return 0, fmt.Errorf("failed to load outbox events: %w", err)
	}

	published := 0
	for i := range events {
		if err := r.publish(ctx, &events[i]); err != nil {
			return published, err
		}
		published++
	}

	if published > 0 {
		r.Logger.Info("Outbox flushed", zap.Int("published", published))
	}
	return published, nil
}

func (r *Relay) publish(ctx context.Context, event *model.OutboxEvent) error {
	body, err := json.Marshal(model.EventEnvelope{
		OccurredAt:  event.CreatedAt,
		MessageID:   event.MessageID,
		EventType:   event.EventType,
		Payload:     json.RawMessage(event.Payload),
		AggregateID: event.AggregateID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbox event %d: %w", event.ID, err)
	}

	now := r.Now().UTC()
	lag := now.Sub(event.CreatedAt).Seconds()

	if err := r.Publisher.Publish(ctx, r.Exchange, event.EventType, event.MessageID, body); err != nil {
		r.Metrics.RecordOutboxPublish(ctx, event.EventType, "error", lag)
		r.Logger.Warn("Failed to publish outbox event",
			zap.Int64("event_id", event.ID),
			zap.String("event_type", event.EventType),
			zap.String("message_id", event.MessageID),
			zap.Int("attempts", event.Attempts+1),
			zap.Error(err),
		)

		msg := err.Error()
		if len(msg) > 512 {
			msg = msg[:512]
		}
		if uerr := r.DB.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", event.ID).Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": msg,
		}).Error; uerr != nil {
			r.Logger.Error("Failed to record outbox attempt", zap.Int64("event_id", event.ID), zap.Error(uerr))
		}
		return fmt.Errorf("failed to publish outbox event %d: %w", event.ID, err)
	}

	// 并发的 relay 可能已标记过，重复投递由消费端去重
	if err := r.DB.WithContext(ctx).Model(&model.OutboxEvent{}).
		Where("id = ? AND published_at IS NULL", event.ID).
		Updates(map[string]interface{}{
			"published_at": now,
			"attempts":     gorm.Expr("attempts + 1"),
			"last_error":   "",
		}).Error; err != nil {
		return fmt.Errorf("failed to mark outbox event %d published: %w", event.ID, err)
	}

	r.Metrics.RecordOutboxPublish(ctx, event.EventType, "ok", lag)
	r.Logger.Debug("Outbox event published",
		zap.Int64("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.String("message_id", event.MessageID),
	)
	return nil
}
