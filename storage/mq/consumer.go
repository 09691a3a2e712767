package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"HabitPact/pkg/errors"
	"HabitPact/pkg/logger"
	pkgmq "HabitPact/pkg/mq"
)

// MessageHandler 处理单条消息，返回 SkipMessageError 时直接 ack
type MessageHandler func(ctx context.Context, msg amqp.Delivery) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或通道关闭
func Consume(ctx context.Context, opts ConsumeOptions) error {
	conn := Connection()
	if conn == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed: %s", opts.Queue)
			}
			handle(ctx, opts, msg)
		}
	}
}

func handle(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, span := pkgmq.StartConsumeSpan(ctx, opts.Queue, msg)
	defer span.End()

	err := opts.Handler(msgCtx, msg)
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
		_ = msg.Ack(false)
	case errors.IsSkip(err):
		logger.Logger.Debug("Skipping message",
			zap.String("queue", opts.Queue),
			zap.String("message_id", msg.MessageId),
			zap.String("reason", err.Error()),
		)
		span.SetStatus(codes.Ok, "skipped")
		_ = msg.Ack(false)
	default:
		logger.Logger.Error("Failed to process message",
			zap.String("queue", opts.Queue),
			zap.String("consumer_tag", opts.ConsumerTag),
			zap.String("message_id", msg.MessageId),
			zap.Error(err),
		)
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		_ = msg.Nack(false, true)
	}
}
