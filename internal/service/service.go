package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitPact/config"
	"HabitPact/internal/model"
	"HabitPact/internal/streak"
	"HabitPact/pkg/logger"
	"HabitPact/pkg/metrics"
	"HabitPact/pkg/snowflake"
	"HabitPact/storage/database"
)

// Policy 引擎策略参数，由配置派生，测试中直接构造
type Policy struct {
	Loc               *time.Location
	Currency          string
	MaxBackfillDays   int
	Quorum            int
	FreezeMax         int
	FreezeEvery       int
	FeeBps            int64
	PlatformAccountID int64
	CharityAccountID  int64
	PayoutMaxAttempts int
	PayoutTimeout     time.Duration
}

// PolicyFromConfig 从全局配置读取策略
func PolicyFromConfig(cfg *config.Config) Policy {
	return Policy{
		Loc:               cfg.Location(),
		Currency:          cfg.DefaultCurrency,
		MaxBackfillDays:   cfg.MaxBackfillDays,
		Quorum:            cfg.VerificationQuorum,
		FreezeMax:         cfg.FreezeMaxBalance,
		FreezeEvery:       cfg.FreezeGrantEvery,
		FeeBps:            cfg.PlatformFeeBps,
		PlatformAccountID: cfg.PlatformAccountID,
		CharityAccountID:  cfg.CharityAccountID,
		PayoutMaxAttempts: cfg.PayoutMaxAttempts,
		PayoutTimeout:     cfg.PayoutTimeout,
	}
}

// Deps 各服务共享的依赖
type Deps struct {
	DB      *gorm.DB
	Logger  *zap.Logger
	Metrics *metrics.OTelMetrics
	Now     func() time.Time
	NextID  func() (int64, error)
	Policy  Policy
}

// DefaultDeps 进程内的默认依赖，要求 storage 与 snowflake 已初始化
func DefaultDeps() Deps {
	return Deps{
		DB:      database.DB(),
		Logger:  logger.Logger,
		Metrics: metrics.GetMetrics(),
		Now:     time.Now,
		NextID:  snowflake.NextID,
		Policy:  PolicyFromConfig(&config.Cfg),
	}
}

func (d Deps) db(ctx context.Context) *gorm.DB {
	return d.DB.WithContext(ctx)
}

func (d Deps) log() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// today 引擎时区下的今天
func (d Deps) today() time.Time {
	return streak.Day(d.now(), d.Policy.Loc)
}

// deadline 挑战截止时刻：EndDate 在引擎时区的零点
func (d Deps) deadline(ch *model.Challenge) time.Time {
	loc := d.Policy.Loc
	if loc == nil {
		loc = time.UTC
	}
	end := streak.Normalize(ch.EndDate)
	return time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc).UTC()
}

func (d Deps) quorum(h int) int {
	if h > 0 {
		return h
	}
	if d.Policy.Quorum > 0 {
		return d.Policy.Quorum
	}
	return 1
}
