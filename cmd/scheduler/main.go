package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"HabitPact/config"
	"HabitPact/internal/queue"
	"HabitPact/internal/schedule"
	"HabitPact/pkg/billing"
	"HabitPact/pkg/logger"
	"HabitPact/pkg/metrics"
	"HabitPact/pkg/otel"
	"HabitPact/pkg/payout"
	"HabitPact/pkg/snowflake"
	"HabitPact/storage"
)

const outboxFlushInterval = 5 * time.Second

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Logger.Info("Scheduler received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOtel, err := otel.InitOpenTelemetry(ctx, otel.FromAppConfig(config.Cfg, "scheduler"))
	if err != nil {
		logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
	}
	defer func() {
		if err := shutdownOtel(context.Background()); err != nil {
			logger.Logger.Warn("Failed to flush telemetry", zap.Error(err))
		}
	}()

	if err := metrics.InitMetrics(); err != nil {
		logger.Logger.Warn("Failed to initialize engine metrics", zap.Error(err))
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage for scheduler", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake for scheduler", zap.Error(err))
	}

	if err := billing.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize billing verifier", zap.Error(err))
	}

	if err := payout.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize payout client", zap.Error(err))
	}

	logger.Logger.Info("Scheduler service starting",
		zap.String("service", config.Cfg.ServiceName+"-scheduler"),
		zap.String("environment", config.Cfg.Environment),
	)

	go runSweepLoop(ctx)
	go runOutboxLoop(ctx)

	<-ctx.Done()

	logger.Logger.Info("Scheduler service shutting down gracefully")
}

// runSweepLoop 周期性推进到期挑战、补偿结算并派发打款
func runSweepLoop(ctx context.Context) {
	s := schedule.GetSweeper()

	interval := config.Cfg.SweepInterval
	// development 环境下每 1 分钟执行一次，方便本地调试
	if config.Cfg.IsDevelopment() {
		interval = time.Minute
		logger.Logger.Info("Challenge sweep running in development mode with 1m interval")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			if _, err := s.Sweep(runCtx); err != nil {
				logger.Logger.Error("Challenge sweep run failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// runOutboxLoop 在两次 sweep 之间持续投递 outbox，降低事件延迟
func runOutboxLoop(ctx context.Context) {
	relay := queue.DefaultRelay()

	ticker := time.NewTicker(outboxFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			if _, err := relay.Flush(runCtx, config.Cfg.OutboxBatchSize); err != nil {
				logger.Logger.Warn("Outbox flush run failed", zap.Error(err))
			}
			cancel()
		}
	}
}
