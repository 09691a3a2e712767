package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/internal/service"
	"HabitPact/pkg/errors"
	"HabitPact/pkg/logger"
	"HabitPact/storage/mq"
	"HabitPact/storage/redis"
)

const (
	processingTTL = 24 * time.Hour
	processedTTL  = 48 * time.Hour
)

// ProgressApplier 把被接受的打卡计入挑战进度
type ProgressApplier interface {
	ApplyCheckIn(ctx context.Context, ev model.CheckInAcceptedEvent) error
}

// CheckInConsumer 消费 check_in_accepted 事件
type CheckInConsumer struct {
	Progress ProgressApplier
	Marker   cache.MessageMarker
	Logger   *zap.Logger
}

func NewCheckInConsumer(progress ProgressApplier, marker cache.MessageMarker) *CheckInConsumer {
	return &CheckInConsumer{
		Progress: progress,
		Marker:   marker,
		Logger:   logger.Named("check_in_consumer"),
	}
}

// StartCheckInAcceptedConsumer 在 worker 中阻塞运行，通道断开后按指数退避重新订阅
func StartCheckInAcceptedConsumer(ctx context.Context) error {
	c := NewCheckInConsumer(service.Challenge(), cache.NewRedisMarker(redis.Client()))
	opts := mq.ConsumeOptions{
		Queue:         mq.CheckInAcceptedQueue,
		ConsumerTag:   "check_in_accepted_consumer",
		PrefetchCount: 10,
		Handler:       c.Handle,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		err := mq.Consume(ctx, opts)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.Logger.Warn("Consumer stopped, resubscribing",
			zap.String("queue", opts.Queue),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Handle 重复消息与无法解析的消息返回 SkipMessageError，其余失败重投
func (c *CheckInConsumer) Handle(ctx context.Context, msg amqp.Delivery) error {
	var env model.EventEnvelope
	if err := json.Unmarshal(msg.Body, &env); err != nil {
		c.Logger.Error("Dropping malformed message", zap.String("message_id", msg.MessageId), zap.Error(err))
		return &errors.SkipMessageError{Reason: "malformed envelope"}
	}
	if env.EventType != model.EventCheckInAccepted {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("unexpected event type %q", env.EventType)}
	}

	messageID := env.MessageID
	if messageID == "" {
		messageID = msg.MessageId
	}

	var ev model.CheckInAcceptedEvent
	if err := json.Unmarshal(env.Payload, &ev); err != nil {
		c.Logger.Error("Dropping malformed payload", zap.String("message_id", messageID), zap.Error(err))
		return &errors.SkipMessageError{Reason: "malformed payload"}
	}

	marked, err := c.Marker.TryMarkProcessing(ctx, messageID, processingTTL)
	if err != nil {
		// Redis 不可用时继续处理，进度表的唯一约束保证不会重复计数
		c.Logger.Warn("Failed to check message processed status",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	} else if !marked {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("message %s already processed", messageID)}
	}

	if err := c.Progress.ApplyCheckIn(ctx, ev); err != nil {
		if uerr := c.Marker.UnmarkProcessing(ctx, messageID); uerr != nil {
			c.Logger.Warn("Failed to unmark message", zap.String("message_id", messageID), zap.Error(uerr))
		}
		if errors.KindOf(err) == errors.KindValidation {
			c.Logger.Error("Dropping unprocessable check-in event",
				zap.String("message_id", messageID),
				zap.Int64("check_in_log_id", ev.CheckInLogID),
				zap.Error(err),
			)
			return &errors.SkipMessageError{Reason: err.Error()}
		}
		return fmt.Errorf("failed to apply check-in %d: %w", ev.CheckInLogID, err)
	}

	if err := c.Marker.MarkProcessed(ctx, messageID, processedTTL); err != nil {
		c.Logger.Warn("Failed to mark message as processed",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}

	c.Logger.Debug("Check-in event applied",
		zap.String("message_id", messageID),
		zap.Int64("check_in_log_id", ev.CheckInLogID),
		zap.Int64("habit_id", ev.HabitID),
	)
	return nil
}
