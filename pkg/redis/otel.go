package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook Redis 追踪 Hook
type TracingHook struct {
	tracer   trace.Tracer
	attrs    []attribute.KeyValue
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewTracingHook 创建追踪 Hook，指标创建失败时只做追踪
func NewTracingHook(serviceName string, db int) *TracingHook {
	meter := otel.Meter(serviceName + ".redis")
	total, _ := meter.Int64Counter(
		"redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	duration, _ := meter.Float64Histogram(
		"redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
	)

	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
			attribute.String("service.name", serviceName),
		},
		total:    total,
		duration: duration,
	}
}

// DialHook 实现 redis.Hook 接口
func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

// ProcessHook 实现 redis.Hook 接口；只记录命令名和首个 key，不记录值
func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis."+cmd.Name(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if args := cmd.Args(); len(args) > 1 {
			if key, ok := args[1].(string); ok {
				span.SetAttributes(attribute.String("redis.key", key))
			}
		}

		start := time.Now()
		err := next(ctx, cmd)

		status := "success"
		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case err == redis.Nil:
			status = "not_found"
			span.SetStatus(codes.Ok, "key not found")
		default:
			status = "error"
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		}

		th.record(ctx, cmd.Name(), status, time.Since(start).Seconds())
		return err
	}
}

// ProcessPipelineHook 实现 redis.Hook 接口
func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		span.SetAttributes(attribute.Int("redis.pipeline.count", len(cmds)))

		start := time.Now()
		err := next(ctx, cmds)
		status := "success"
		if err != nil {
			status = "error"
			span.SetStatus(codes.Error, err.Error())
		}
		th.record(ctx, "pipeline", status, time.Since(start).Seconds())
		return err
	}
}

func (th *TracingHook) record(ctx context.Context, command, status string, seconds float64) {
	labels := metric.WithAttributes(
		attribute.String("redis.command", command),
		attribute.String("redis.status", status),
	)
	if th.total != nil {
		th.total.Add(ctx, 1, labels)
	}
	if th.duration != nil {
		th.duration.Record(ctx, seconds, labels)
	}
}

// InstrumentRedisClient 给客户端挂上追踪 Hook
func InstrumentRedisClient(client *redis.Client, serviceName string, db int) {
	client.AddHook(NewTracingHook(serviceName, db))
}
