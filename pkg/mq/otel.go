package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "habitpact.rabbitmq"

// MessageHeaderCarrier 实现 propagation.TextMapCarrier 接口
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}

// StartPublishSpan 开启发布 span 并把追踪上下文写入消息头
func StartPublishSpan(ctx context.Context, exchange, routingKey string, msg *amqp.Publishing) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rabbitmq.publish."+routingKey,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			attribute.String("messaging.rabbitmq.exchange", exchange),
			attribute.String("messaging.rabbitmq.routing_key", routingKey),
			semconv.MessagingMessageID(msg.MessageId),
		),
	)

	headers := make(amqp.Table, len(msg.Headers)+2)
	for k, v := range msg.Headers {
		headers[k] = v
	}
	otel.GetTextMapPropagator().Inject(ctx, &MessageHeaderCarrier{Headers: headers})
	msg.Headers = headers

	return ctx, span
}

// StartConsumeSpan 从消息头恢复上游追踪上下文并开启处理 span
func StartConsumeSpan(ctx context.Context, queue string, msg amqp.Delivery) (context.Context, trace.Span) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, &MessageHeaderCarrier{Headers: msg.Headers})
	return otel.Tracer(tracerName).Start(ctx, "rabbitmq.consume."+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			semconv.MessagingSystem("rabbitmq"),
			attribute.String("messaging.rabbitmq.queue", queue),
			attribute.String("messaging.rabbitmq.routing_key", msg.RoutingKey),
			semconv.MessagingMessageID(msg.MessageId),
		),
	)
}
