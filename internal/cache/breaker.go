package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"HabitPact/pkg/logger"
)

// State 熔断器状态
type State int

const (
	StateClosed   State = iota // 关闭状态：正常工作
	StateOpen                  // 开启状态：熔断中
	StateHalfOpen              // 半开状态：尝试恢复
)

// ErrBreakerOpen 熔断期间直接拒绝调用
var ErrBreakerOpen = fmt.Errorf("circuit breaker is open")

// CircuitBreaker 下游调用熔断器
type CircuitBreaker struct {
	name             string
	maxFailures      int
	resetTimeout     time.Duration
	halfOpenMaxCalls int
	now              func() time.Time

	mu            sync.Mutex
	state         State
	failures      int
	lastFailTime  time.Time
	halfOpenCalls int
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: 1,
		state:            StateClosed,
		now:              time.Now,
	}
}

// Call 执行带熔断保护的操作；ignore 返回 true 的错误不计入失败
func (cb *CircuitBreaker) Call(ctx context.Context, operation func(ctx context.Context) error, ignore ...func(error) bool) error {
	if !cb.allowRequest() {
		return fmt.Errorf("%w: %s", ErrBreakerOpen, cb.name)
	}

	err := operation(ctx)
	if err != nil {
		for _, fn := range ignore {
			if fn(err) {
				cb.recordResult(nil)
				return err
			}
		}
	}
	cb.recordResult(err)
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailTime) < cb.resetTimeout {
			return false
		}
		cb.transitionToHalfOpen()
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return false
		}
		cb.halfOpenCalls++
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) recordResult(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		if cb.state == StateHalfOpen {
			cb.transitionToClosed()
		}
		cb.failures = 0
		return
	}

	cb.failures++
	cb.lastFailTime = cb.now()

	logger.Logger.Warn("Downstream call failed",
		zap.String("breaker", cb.name),
		zap.Int("failures", cb.failures),
		zap.String("state", cb.stateName()),
	)

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.maxFailures {
			cb.transitionToOpen()
		}
	case StateHalfOpen:
		cb.transitionToOpen()
	}
}

func (cb *CircuitBreaker) transitionToClosed() {
	cb.state = StateClosed
	cb.halfOpenCalls = 0

	logger.Logger.Info("Circuit breaker transitioned to closed",
		zap.String("breaker", cb.name),
	)
}

func (cb *CircuitBreaker) transitionToOpen() {
	cb.state = StateOpen
	cb.halfOpenCalls = 0

	logger.Logger.Warn("Circuit breaker transitioned to open",
		zap.String("breaker", cb.name),
		zap.Int("failures", cb.failures),
		zap.Duration("reset_timeout", cb.resetTimeout),
	)
}

func (cb *CircuitBreaker) transitionToHalfOpen() {
	cb.state = StateHalfOpen
	cb.halfOpenCalls = 0

	logger.Logger.Info("Circuit breaker transitioned to half-open",
		zap.String("breaker", cb.name),
	)
}

func (cb *CircuitBreaker) stateName() string {
	switch cb.state {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// GetState 获取当前状态
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// 全局熔断器实例
var (
	// 打款通道：连续失败 5 次后熔断，30 秒后尝试恢复
	PayoutBreaker = NewCircuitBreaker("payout_processor", 5, 30*time.Second)

	// 账单确认：连续失败 3 次后熔断，10 秒后尝试恢复
	BillingBreaker = NewCircuitBreaker("billing_verifier", 3, 10*time.Second)
)
