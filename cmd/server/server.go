package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"HabitPact/config"
	"HabitPact/internal/middleware"
	"HabitPact/internal/router"
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

	shutdownOtel, err := otel.InitOpenTelemetry(ctx, otel.FromAppConfig(config.Cfg, "server"))
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

	// 初始化存储层，记得关闭外部连接
	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// 质押确认与连胜恢复都依赖账单校验
	if err := billing.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize billing verifier", zap.Error(err))
	}

	logger.Logger.Info("Server starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("port", config.Cfg.ServerPort),
		zap.String("environment", config.Cfg.Environment),
		zap.String("timezone", config.Cfg.EngineTimezone),
	)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	tracerOpt, tracingMiddleware := middleware.NewServerTracerConfig()
	h := server.Default(
		server.WithHostPorts(addr),
		server.WithExitWaitTime(5*time.Second),
		tracerOpt,
	)

	router.Register(h, tracingMiddleware)

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
