package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"HabitPact/config"
	"HabitPact/pkg/logger"
)

const (
	// EventsExchange 领域事件统一走 topic 交换机，routing key 即事件类型
	EventsExchange = "events.topic"

	// CheckInAcceptedQueue 挑战进度消费者订阅的队列
	CheckInAcceptedQueue = "events.check_in_accepted"
)

// Binding 队列与 routing key 的绑定
type Binding struct {
	Queue      string
	RoutingKey string
}

// Bindings 需要声明的队列，新增消费者时在这里登记
var Bindings = []Binding{
	{Queue: CheckInAcceptedQueue, RoutingKey: "check_in_accepted"},
}

var (
	conn     *amqp.Connection
	connOnce sync.Once
	connErr  error
)

func Init() error {
	connOnce.Do(func() {
		conn, connErr = amqp.Dial(config.Cfg.GetRabbitMQURL())
		if connErr != nil {
			return
		}
		connErr = declareTopology()
	})

	return connErr
}

func declareTopology() error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", EventsExchange, err)
	}

	for _, b := range Bindings {
		if _, err := ch.QueueDeclare(b.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", b.Queue, err)
		}
		if err := ch.QueueBind(b.Queue, b.RoutingKey, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", b.Queue, err)
		}
	}

	logger.Logger.Info("RabbitMQ topology declared",
		zap.String("exchange", EventsExchange),
		zap.Int("queues", len(Bindings)),
	)
	return nil
}

// Connection 返回共享连接，未初始化时为 nil
func Connection() *amqp.Connection {
	return conn
}

func Close(ctx context.Context) error {
	pubMutex.Lock()
	if publisherCh != nil && !publisherCh.IsClosed() {
		_ = publisherCh.Close()
	}
	publisherCh = nil
	pubMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}
