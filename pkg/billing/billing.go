package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"go.uber.org/zap"

	"HabitPact/config"
	"HabitPact/pkg/errors"
	"HabitPact/pkg/logger"
)

// Verifier 确认支付是否到账，用于连胜恢复和押金确认
type Verifier interface {
	IsConfirmed(ctx context.Context, paymentRef string) (bool, error)
}

var (
	verifier   Verifier
	verifyOnce sync.Once
	verifyErr  error
)

// Init 未配置账单服务时，开发环境使用全部放行的 mock
func Init() error {
	verifyOnce.Do(func() {
		cfg := config.Cfg

		if cfg.BillingBaseURL == "" {
			mock := NewMockVerifier()
			mock.ConfirmAll = cfg.IsDevelopment()
			verifier = mock
			logger.Logger.Warn("Billing verifier running in mock mode",
				zap.Bool("confirm_all", mock.ConfirmAll),
			)
			return
		}

		verifier, verifyErr = NewHTTPVerifier(cfg.BillingBaseURL, cfg.PayoutTimeout)
		if verifyErr != nil {
			logger.Logger.Error("Failed to initialize billing verifier", zap.Error(verifyErr))
			return
		}
		logger.Logger.Info("Billing verifier initialized successfully")
	})

	return verifyErr
}

func GetVerifier() Verifier {
	if verifier == nil {
		panic("billing verifier not initialized, call billing.Init() first")
	}
	return verifier
}

// HTTPVerifier 查询外部账单服务
type HTTPVerifier struct {
	hc      *client.Client
	baseURL string
	timeout time.Duration
}

type paymentStatus struct {
	Status string `json:"status"`
}

func NewHTTPVerifier(baseURL string, timeout time.Duration) (*HTTPVerifier, error) {
	hc, err := client.NewClient(client.WithDialTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to create billing http client: %w", err)
	}
	return &HTTPVerifier{hc: hc, baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}, nil
}

func (v *HTTPVerifier) IsConfirmed(ctx context.Context, paymentRef string) (bool, error) {
	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(v.baseURL + "/v1/payments/" + url.PathEscape(paymentRef))

	if err := v.hc.DoTimeout(ctx, req, resp, v.timeout); err != nil {
		return false, fmt.Errorf("%w: %v", errors.BillingUnavailable, err)
	}

	switch status := resp.StatusCode(); {
	case status == consts.StatusNotFound:
		return false, nil
	case status >= 400:
		return false, fmt.Errorf("%w: status %d", errors.BillingUnavailable, status)
	}

	var ps paymentStatus
	if err := json.Unmarshal(resp.Body(), &ps); err != nil {
		return false, fmt.Errorf("%w: invalid response: %v", errors.BillingUnavailable, err)
	}
	return ps.Status == "confirmed", nil
}

// MockVerifier 测试用，Confirmed 中的引用视为已到账
type MockVerifier struct {
	mu         sync.Mutex
	Confirmed  map[string]bool
	ConfirmAll bool
	Err        error
	Calls      int
}

func NewMockVerifier(refs ...string) *MockVerifier {
	m := &MockVerifier{Confirmed: make(map[string]bool)}
	for _, ref := range refs {
		m.Confirmed[ref] = true
	}
	return m
}

func (m *MockVerifier) IsConfirmed(ctx context.Context, paymentRef string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	if m.Err != nil {
		return false, m.Err
	}
	return m.ConfirmAll || m.Confirmed[paymentRef], nil
}

// Confirm 标记一笔支付已到账
func (m *MockVerifier) Confirm(paymentRef string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Confirmed[paymentRef] = true
}
