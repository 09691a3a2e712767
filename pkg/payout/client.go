package payout

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"HabitPact/config"
	"HabitPact/pkg/logger"
)

// Result 打款通道的受理结果
type Result struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
}

// Client 打款通道接口；同一 idempotencyKey 多次调用只会产生一笔真实打款
type Client interface {
	RequestPayout(ctx context.Context, userID, amountCents int64, currency, idempotencyKey string) (*Result, error)
}

var (
	payoutClient Client
	payoutOnce   sync.Once
	payoutErr    error
)

// Init 初始化打款客户端
func Init() error {
	payoutOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.PayoutProvider {
		case "http":
			payoutClient, payoutErr = NewHTTPClient(cfg.PayoutBaseURL, cfg.PayoutAPIKey, cfg.PayoutTimeout)
		case "mock":
			payoutClient = NewMockClient()
		default:
			payoutErr = fmt.Errorf("unsupported payout provider: %s", cfg.PayoutProvider)
		}

		if payoutErr != nil {
			logger.Logger.Error("Failed to initialize payout client", zap.Error(payoutErr))
			return
		}

		logger.Logger.Info("Payout client initialized successfully",
			zap.String("provider", cfg.PayoutProvider),
		)
	})

	return payoutErr
}

func GetClient() Client {
	if payoutClient == nil {
		panic("payout client not initialized, call payout.Init() first")
	}
	return payoutClient
}
