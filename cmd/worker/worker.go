package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"HabitPact/config"
	"HabitPact/internal/queue"
	"HabitPact/pkg/billing"
	"HabitPact/pkg/logger"
	"HabitPact/pkg/metrics"
	"HabitPact/pkg/otel"
	"HabitPact/pkg/snowflake"
	"HabitPact/storage"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger.Init()
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	shutdownOtel, err := otel.InitOpenTelemetry(ctx, otel.FromAppConfig(config.Cfg, "worker"))
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
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	// 各进程使用不同的 SNOWFLAKE_MACHINE_ID 部署
	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// 进度推进可能触发结算前的挑战评估，ChallengeService 需要账单校验
	if err := billing.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize billing verifier", zap.Error(err))
	}

	logger.Logger.Info("Worker service starting",
		zap.String("service", config.Cfg.ServiceName+"-worker"),
		zap.String("environment", config.Cfg.Environment),
	)

	if err := queue.StartCheckInAcceptedConsumer(ctx); err != nil {
		logger.Logger.Error("Check-in consumer exited", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
