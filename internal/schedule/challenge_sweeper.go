package schedule

// 挑战调度：推进到期挑战、补偿结算、派发打款、投递 outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"HabitPact/config"
	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/internal/queue"
	"HabitPact/internal/service"
	"HabitPact/pkg/errors"
	"HabitPact/pkg/logger"
	"HabitPact/storage/redis"
)

const (
	sweepLockKey = "sweep:challenges"
	sweepLockTTL = 5 * time.Minute
)

type Evaluator interface {
	DueForEvaluation(ctx context.Context, limit int) ([]int64, error)
	Evaluate(ctx context.Context, challengeID int64) (*model.Challenge, error)
}

type Settler interface {
	Unsettled(ctx context.Context, limit int) ([]int64, error)
	Settle(ctx context.Context, challengeID int64) (*service.SettlementResult, error)
}

type Dispatcher interface {
	DispatchPending(ctx context.Context, limit int) (service.DispatchStats, error)
}

type Flusher interface {
	Flush(ctx context.Context, batch int) (int, error)
}

// SweepStats 一轮调度的结果
type SweepStats struct {
	Payouts   service.DispatchStats
	Evaluated int
	Settled   int
	Published int
	Failures  int
}

type ChallengeSweeper struct {
	logger      *zap.Logger
	Challenges  Evaluator
	Settlements Settler
	Payouts     Dispatcher
	Relay       Flusher
	Locker      cache.Locker

	BatchSize       int
	PayoutBatchSize int
	OutboxBatchSize int

	mu      sync.Mutex
	running bool
	lastRun time.Time
}

var (
	sweeperOnce sync.Once
	sweeperInst *ChallengeSweeper
)

// GetSweeper 进程内单例，要求 storage 已初始化
func GetSweeper() *ChallengeSweeper {
	sweeperOnce.Do(func() {
		sweeperInst = NewChallengeSweeper(
			service.Challenge(),
			service.Settlement(),
			service.Payout(),
			queue.DefaultRelay(),
			cache.NewRedisLocker(redis.Client()),
		)
		sweeperInst.PayoutBatchSize = config.Cfg.PayoutBatchSize
		sweeperInst.OutboxBatchSize = config.Cfg.OutboxBatchSize
	})
	return sweeperInst
}

func NewChallengeSweeper(challenges Evaluator, settlements Settler, payouts Dispatcher, relay Flusher, locker cache.Locker) *ChallengeSweeper {
	return &ChallengeSweeper{
		logger:          logger.Named("challenge_sweeper"),
		Challenges:      challenges,
		Settlements:     settlements,
		Payouts:         payouts,
		Relay:           relay,
		Locker:          locker,
		BatchSize:       200,
		PayoutBatchSize: 50,
		OutboxBatchSize: 100,
	}
}

// Sweep 执行一轮。同一进程内不重入，多实例之间由分布式锁互斥；
// 每一步都是幂等的，锁过期后的重叠执行不会产生重复副作用
func (s *ChallengeSweeper) Sweep(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Sweep already running, skipping")
		return stats, nil
	}
	s.running = true
	startTime := time.Now()
	s.lastRun = startTime
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if s.Locker != nil {
		ok, err := s.Locker.TryLock(ctx, sweepLockKey, sweepLockTTL)
		if err != nil {
			return stats, fmt.Errorf("failed to acquire sweep lock: %w", err)
		}
		if !ok {
			s.logger.Debug("Sweep lock held by another instance, skipping")
			return stats, nil
		}
		defer func() {
			if err := s.Locker.Unlock(context.WithoutCancel(ctx), sweepLockKey); err != nil {
				s.logger.Warn("Failed to release sweep lock", zap.Error(err))
			}
		}()
	}

	if err := s.evaluateDue(ctx, &stats); err != nil {
		return stats, err
	}
	if err := s.settleUnsettled(ctx, &stats); err != nil {
		return stats, err
	}

	payouts, err := s.Payouts.DispatchPending(ctx, s.PayoutBatchSize)
	if err != nil {
		s.logger.Error("Payout dispatch failed", zap.Error(err))
		stats.Failures++
	}
	stats.Payouts = payouts

	published, err := s.Relay.Flush(ctx, s.OutboxBatchSize)
	if err != nil {
		s.logger.Warn("Outbox flush incomplete", zap.Int("published", published), zap.Error(err))
		stats.Failures++
	}
	stats.Published = published

	s.logger.Info("Sweep finished",
		zap.Int("evaluated", stats.Evaluated),
		zap.Int("settled", stats.Settled),
		zap.Int("payouts_completed", stats.Payouts.Completed),
		zap.Int("payouts_deferred", stats.Payouts.Deferred),
		zap.Int("published", stats.Published),
		zap.Int("failures", stats.Failures),
		zap.Duration("duration", time.Since(startTime)),
	)
	return stats, nil
}

func (s *ChallengeSweeper) evaluateDue(ctx context.Context, stats *SweepStats) error {
	ids, err := s.Challenges.DueForEvaluation(ctx, s.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list due challenges: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		ch, err := s.Challenges.Evaluate(ctx, id)
		if err != nil {
			s.logFailure("Challenge evaluation failed", id, err)
			stats.Failures++
			continue
		}
		stats.Evaluated++
		s.logger.Debug("Challenge evaluated", zap.Int64("challenge_id", id), zap.String("status", string(ch.Status)))
	}
	return nil
}

func (s *ChallengeSweeper) settleUnsettled(ctx context.Context, stats *SweepStats) error {
	ids, err := s.Settlements.Unsettled(ctx, s.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list unsettled challenges: %w", err)
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Settlements.Settle(ctx, id); err != nil {
			if errors.Is(err, errors.SettlementConflict) {
				continue
			}
			s.logFailure("Settlement repair failed", id, err)
			stats.Failures++
			continue
		}
		stats.Settled++
	}
	return nil
}

// logFailure 一致性错误需要人工介入，按 ERROR 记录
func (s *ChallengeSweeper) logFailure(msg string, challengeID int64, err error) {
	fields := []zap.Field{
		zap.Int64("challenge_id", challengeID),
		zap.String("kind", string(errors.KindOf(err))),
		zap.Error(err),
	}
	if errors.KindOf(err) == errors.KindIntegrity {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Warn(msg, fields...)
}

// LastRun 最近一次开始执行的时间
func (s *ChallengeSweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
