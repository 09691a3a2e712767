package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/route"
	"github.com/stretchr/testify/require"

	"HabitPact/pkg/errors"
	"HabitPact/pkg/response"
)

// memoryWindow 固定窗口计数，足以验证中间件的分支
type memoryWindow struct {
	mu      sync.Mutex
	hits    map[string]int
	blocked map[string]bool
	failing bool
}

func newMemoryWindow() *memoryWindow {
	return &memoryWindow{hits: map[string]int{}, blocked: map[string]bool{}}
}

func (m *memoryWindow) Hit(_ context.Context, key string, _ time.Time, _ time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, errors.StorageUnavailable
	}
	m.hits[key]++
	return m.hits[key], nil
}

func (m *memoryWindow) Block(_ context.Context, key string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked[key] = true
	return nil
}

func (m *memoryWindow) Blocked(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked[key], nil
}

func newEngine(mw ...app.HandlerFunc) *route.Engine {
	r := route.NewEngine(config.NewOptions([]config.Option{}))
	r.Use(mw...)
	r.POST("/ok", func(ctx context.Context, c *app.RequestContext) {
		response.Success(ctx, c, map[string]string{"status": "ok"})
	})
	r.GET("/panic", func(ctx context.Context, c *app.RequestContext) {
		panic("boom")
	})
	return r
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp.Error.Code
}

func TestRateLimitPerCaller(t *testing.T) {
	store := newMemoryWindow()
	limiter := NewRateLimiter(store, RateLimitConfig{
		KeyPrefix:   "rate:test",
		Window:      time.Second,
		MaxRequests: 2,
		ByCaller:    true,
	})
	r := newEngine(limiter.Middleware())

	for i := 0; i < 2; i++ {
		w := ut.PerformRequest(r, http.MethodPost, "/ok", nil, ut.Header{Key: CallerHeader, Value: "7"})
		require.Equal(t, http.StatusOK, w.Result().StatusCode())
	}

	w := ut.PerformRequest(r, http.MethodPost, "/ok", nil, ut.Header{Key: CallerHeader, Value: "7"})
	require.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())
	require.Equal(t, errors.TooManyRequests.Code, errorCode(t, w.Result().Body()))
	require.Equal(t, "0", string(w.Result().Header.Peek("X-RateLimit-Remaining")))

	// 其他调用方不受影响
	w = ut.PerformRequest(r, http.MethodPost, "/ok", nil, ut.Header{Key: CallerHeader, Value: "8"})
	require.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestRateLimitBlocksAfterOverflow(t *testing.T) {
	store := newMemoryWindow()
	limiter := NewRateLimiter(store, RateLimitConfig{
		KeyPrefix:     "rate:test",
		Window:        time.Second,
		BlockDuration: time.Minute,
		MaxRequests:   1,
		ByCaller:      true,
	})
	r := newEngine(limiter.Middleware())

	ut.PerformRequest(r, http.MethodPost, "/ok", nil, ut.Header{Key: CallerHeader, Value: "7"})
	w := ut.PerformRequest(r, http.MethodPost, "/ok", nil, ut.Header{Key: CallerHeader, Value: "7"})
	require.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())
	require.Len(t, store.blocked, 1)

	// 新窗口里仍然被封禁
	store.hits = map[string]int{}
	w = ut.PerformRequest(r, http.MethodPost, "/ok", nil, ut.Header{Key: CallerHeader, Value: "7"})
	require.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())
}

func TestRateLimitFailsOpen(t *testing.T) {
	store := newMemoryWindow()
	store.failing = true
	limiter := NewRateLimiter(store, RateLimitConfig{KeyPrefix: "rate:test", Window: time.Second, MaxRequests: 1})
	r := newEngine(limiter.Middleware())

	for i := 0; i < 3; i++ {
		w := ut.PerformRequest(r, http.MethodPost, "/ok", nil)
		require.Equal(t, http.StatusOK, w.Result().StatusCode())
	}
}

func TestRecoverHidesDetailsInProduction(t *testing.T) {
	r := newEngine(RecoverMiddlewareWithConfig(RecoverConfig{}))

	w := ut.PerformRequest(r, http.MethodGet, "/panic", nil)
	require.Equal(t, http.StatusInternalServerError, w.Result().StatusCode())

	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	require.Equal(t, errors.InternalError.Code, resp.Error.Code)
	require.Empty(t, resp.Error.Details)
}

func TestRecoverExposesDetails(t *testing.T) {
	var severe bool
	r := newEngine(RecoverMiddlewareWithConfig(RecoverConfig{
		ExposeDetails:    true,
		EnableStackTrace: true,
		OnSevereError: func(context.Context, *app.RequestContext, interface{}, []byte) {
			severe = true
		},
	}))

	w := ut.PerformRequest(r, http.MethodGet, "/panic", nil)
	require.Equal(t, http.StatusInternalServerError, w.Result().StatusCode())

	var resp response.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	require.Equal(t, "boom", resp.Error.Details["panic"])
	require.NotEmpty(t, resp.Error.Details["stack"])
	require.False(t, severe)

	require.True(t, isSeverePanic("runtime error: index out of range [3] with length 1"))
}
