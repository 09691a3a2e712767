package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"HabitPact/pkg/logger"
	pkgmq "HabitPact/pkg/mq"
)

var (
	publisherCh *amqp.Channel
	pubMutex    sync.RWMutex
)

func getPublisherChannel() (*amqp.Channel, error) {
	pubMutex.RLock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		ch := publisherCh
		pubMutex.RUnlock()
		return ch, nil
	}
	pubMutex.RUnlock()

	pubMutex.Lock()
	defer pubMutex.Unlock()

	if publisherCh != nil && !publisherCh.IsClosed() {
		return publisherCh, nil
	}

	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open publish channel: %w", err)
	}

	publisherCh = ch
	closeChan := ch.NotifyClose(make(chan *amqp.Error, 1))

	go func() {
		<-closeChan

		pubMutex.Lock()
		if publisherCh == ch {
			publisherCh = nil
		}
		pubMutex.Unlock()

		logger.Logger.Warn("Publisher channel closed, will recreate on next publish",
			zap.String("component", "rabbitmq"),
		)
	}()

	logger.Logger.Info("Publisher channel created",
		zap.String("component", "rabbitmq"),
	)

	return ch, nil
}

// Publisher 基于共享连接的发布器，满足 outbox relay 的依赖
type Publisher struct{}

// Publish 发送持久化 JSON 消息，messageID 作为消费端去重依据
func (Publisher) Publish(ctx context.Context, exchange, routingKey, messageID string, body []byte) error {
	return PublishMessage(ctx, exchange, routingKey, messageID, body)
}

// PublishMessage 发送普通消息
func PublishMessage(ctx context.Context, exchange, routingKey, messageID string, body []byte) error {
	ch, err := getPublisherChannel()
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    messageID,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}

	ctx, span := pkgmq.StartPublishSpan(ctx, exchange, routingKey, &msg)
	defer span.End()

	if err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
