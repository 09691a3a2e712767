package middleware

import (
	"context"
	"fmt"
	"runtime"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	appconfig "HabitPact/config"
	"HabitPact/pkg/errors"
	"HabitPact/pkg/logger"
	"HabitPact/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	// 严重 panic 的回调，可用于接入告警
	OnSevereError func(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte)
	// 非生产环境在响应中附带 panic 内容与堆栈
	ExposeDetails    bool
	EnableStackTrace bool
	RecordInSpan     bool
}

func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		ExposeDetails:    !appconfig.Cfg.IsProduction(),
		EnableStackTrace: true,
		RecordInSpan:     true,
	}
}

func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

func RecoverMiddlewareWithConfig(config RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, config)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, config RecoverConfig) {
	var stack []byte
	if config.EnableStackTrace {
		stack = callerStack(4)
	}

	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", string(c.GetHeader("X-Request-Id"))),
	}
	if callerID, ok := GetCallerID(ctx, c); ok {
		fields = append(fields, zap.String("caller_id", callerID))
	}
	if len(stack) > 0 {
		fields = append(fields, zap.ByteString("stack", stack))
	}
	logger.Logger.Error("[PANIC RECOVERED]", fields...)

	if config.RecordInSpan {
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.RecordError(fmt.Errorf("panic: %v", err), trace.WithStackTrace(false))
			span.SetStatus(codes.Error, "panic recovered")
		}
	}

	if isSeverePanic(err) {
		logger.Logger.Error("[SEVERE PANIC DETECTED]", fields...)
		if config.OnSevereError != nil {
			config.OnSevereError(ctx, c, err, stack)
		}
	}

	if !config.ExposeDetails {
		response.Error(ctx, c, errors.InternalError)
		c.Abort()
		return
	}
	details := map[string]interface{}{"panic": fmt.Sprintf("%v", err)}
	if len(stack) > 0 {
		details["stack"] = string(stack)
	}
	response.ErrorWithDetails(ctx, c, errors.InternalError, details)
	c.Abort()
}

// callerStack 当前 goroutine 的调用栈，跳过 runtime 帧
func callerStack(skip int) []byte {
	var sb strings.Builder
	for i := skip; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "/runtime/") {
			continue
		}
		name := "?"
		if fn := runtime.FuncForPC(pc); fn != nil {
			name = fn.Name()
		}
		fmt.Fprintf(&sb, "  %s:%d\n    %s\n", file, line, name)
	}
	return []byte(sb.String())
}

var severePatterns = []string{
	"runtime: out of memory",
	"fatal error:",
	"concurrent map writes",
	"concurrent map read and map write",
	"all goroutines are asleep - deadlock!",
	"index out of range",
	"slice bounds out of range",
	"invalid memory address or nil pointer dereference",
}

func isSeverePanic(err interface{}) bool {
	if err == nil {
		return false
	}
	msg := fmt.Sprintf("%v", err)
	for _, pattern := range severePatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
