package middleware

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"HabitPact/pkg/logger"
)

// httpMetrics 服务端请求指标
type httpMetrics struct {
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
	responseSize metric.Int64Histogram
	active       metric.Int64UpDownCounter
}

var (
	metricsOnce sync.Once
	serverStats *httpMetrics
)

// toValidUTF8 用户可控字符串写入 span 和指标前先清洗
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	m := &httpMetrics{}
	var err error

	if m.requests, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	if m.duration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, err
	}

	if m.responseSize, err = meter.Int64Histogram(
		"http.server.response.size",
		metric.WithDescription("HTTP response size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}

	if m.active, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

// OpenTelemetryMiddleware 记录请求 span 与指标，指标在首次使用时注册到全局 MeterProvider
func OpenTelemetryMiddleware() app.HandlerFunc {
	metricsOnce.Do(func() {
		m, err := newHTTPMetrics(otel.Meter("habitpact.http"))
		if err != nil {
			logger.Logger.Warn("Failed to initialize HTTP metrics", zap.Error(err))
			return
		}
		serverStats = m
	})
	tracer := otel.Tracer("habitpact.http")

	return func(ctx context.Context, c *app.RequestContext) {
		startTime := time.Now()

		method := toValidUTF8(string(c.Method()))
		route := toValidUTF8(c.FullPath())
		if route == "" {
			route = toValidUTF8(string(c.Path()))
		}

		spanCtx, span := tracer.Start(ctx, method+" "+route, trace.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPURL(toValidUTF8(c.Request.URI().String())),
			attribute.String("http.user_agent", toValidUTF8(string(c.UserAgent()))),
		))
		defer span.End()

		if callerID, ok := GetCallerID(ctx, c); ok {
			span.SetAttributes(attribute.String("enduser.id", toValidUTF8(callerID)))
		}
		if requestID := c.GetHeader("X-Request-Id"); len(requestID) > 0 {
			span.SetAttributes(attribute.String("http.request_id", toValidUTF8(string(requestID))))
		}

		if serverStats != nil {
			serverStats.active.Add(ctx, 1)
			defer serverStats.active.Add(ctx, -1)
		}

		c.Next(spanCtx)

		statusCode := c.Response.StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(statusCode))
		switch {
		case statusCode >= 500:
			span.SetStatus(codes.Error, "server error")
			if lastErr := c.Errors.Last(); lastErr != nil {
				span.RecordError(lastErr)
			}
		case statusCode >= 400:
			span.SetStatus(codes.Error, "client error")
		default:
			span.SetStatus(codes.Ok, "")
		}

		if serverStats == nil {
			return
		}
		labels := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(statusCode),
		)
		serverStats.requests.Add(ctx, 1, labels)
		serverStats.duration.Record(ctx, time.Since(startTime).Seconds(), labels)
		if size := int64(len(c.Response.Body())); size > 0 {
			serverStats.responseSize.Record(ctx, size, labels)
		}
	}
}

// NewServerTracerConfig hertz server 的追踪选项和中间件，两者需一起使用
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
