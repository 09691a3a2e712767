package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
	"HabitPact/pkg/payout"
	"HabitPact/storage/redis"
)

// DispatchStats 一轮派发的统计
type DispatchStats struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Deferred  int `json:"deferred"` // 通道暂不可用，留待下一轮
	Skipped   int `json:"skipped"`  // 其他进程正在处理
}

// PayoutService 把 pending 的出池条目交给打款通道，调用期间不持有数据库事务
type PayoutService struct {
	Deps
	Client          payout.Client
	Locker          cache.Locker
	Breaker         *cache.CircuitBreaker
	MaxRetries      uint64
	InitialInterval time.Duration
}

var (
	payoutService *PayoutService
	payoutOnce    sync.Once
)

func Payout() *PayoutService {
	payoutOnce.Do(func() {
		payoutService = NewPayoutService(DefaultDeps(), payout.GetClient(), cache.NewRedisLocker(redis.Client()))
		payoutService.Breaker = cache.PayoutBreaker
	})
	return payoutService
}

func NewPayoutService(d Deps, client payout.Client, locker cache.Locker) *PayoutService {
	retries := uint64(2)
	if d.Policy.PayoutMaxAttempts > 1 {
		retries = uint64(d.Policy.PayoutMaxAttempts - 1)
	}
	return &PayoutService{
		Deps:            d,
		Client:          client,
		Locker:          locker,
		MaxRetries:      retries,
		InitialInterval: 200 * time.Millisecond,
	}
}

// DispatchPending 处理最多 limit 条待打款条目
func (s *PayoutService) DispatchPending(ctx context.Context, limit int) (DispatchStats, error) {
	var stats DispatchStats

	var entries []model.LedgerEntry
	err := s.db(ctx).
		Where("status = ? AND type IN ?", model.LedgerPending, []model.LedgerEntryType{
			model.LedgerWin, model.LedgerPayout, model.LedgerRefund,
		}).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return stats, fmt.Errorf("failed to list pending payouts: %w", err)
	}

	for i := range entries {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		switch s.dispatch(ctx, &entries[i]) {
		case model.LedgerCompleted:
			stats.Completed++
		case model.LedgerFailed:
			stats.Failed++
		case model.LedgerPending:
			stats.Deferred++
		default:
			stats.Skipped++
		}
	}

	if len(entries) > 0 {
		s.log().Info("Payout dispatch finished",
			zap.Int("entries", len(entries)),
			zap.Int("completed", stats.Completed),
			zap.Int("failed", stats.Failed),
			zap.Int("deferred", stats.Deferred),
			zap.Int("skipped", stats.Skipped),
		)
	}
	return stats, nil
}

// dispatch 返回条目的新状态，未处理时返回空串
func (s *PayoutService) dispatch(ctx context.Context, entry *model.LedgerEntry) model.LedgerStatus {
	lockKey := "payout:" + strconv.FormatInt(entry.ID, 10)
	ttl := s.Policy.PayoutTimeout*2 + 5*time.Second

	ok, err := s.Locker.TryLock(ctx, lockKey, ttl)
	if err != nil {
		s.log().Warn("Failed to acquire payout lock", zap.Int64("entry_id", entry.ID), zap.Error(err))
		return ""
	}
	if !ok {
		return ""
	}
	defer func() {
		if err := s.Locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			s.log().Warn("Failed to release payout lock", zap.Int64("entry_id", entry.ID), zap.Error(err))
		}
	}()

	var current model.LedgerEntry
	if err := s.db(ctx).Select("id", "status").Where("id = ?", entry.ID).Take(&current).Error; err != nil {
		s.log().Warn("Failed to reload ledger entry", zap.Int64("entry_id", entry.ID), zap.Error(err))
		return ""
	}
	if current.Status != model.LedgerPending {
		return ""
	}

	start := time.Now()
	result, callErr := s.requestWithRetry(ctx, entry)
	elapsed := time.Since(start).Seconds()

	now := s.now().UTC()
	updates := map[string]interface{}{"attempts": entry.Attempts + 1}
	status := model.LedgerPending

	switch {
	case callErr == nil:
		status = model.LedgerCompleted
		updates["status"] = model.LedgerCompleted
		updates["external_txn_id"] = result.TransactionID
		updates["completed_at"] = now
		updates["last_error"] = ""
	case errors.Is(callErr, errors.PayoutRejected):
		status = model.LedgerFailed
		updates["status"] = model.LedgerFailed
		updates["last_error"] = truncate(callErr.Error(), 512)
	default:
		updates["last_error"] = truncate(callErr.Error(), 512)
	}

	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.LedgerEntry{}).
			Where("id = ? AND status = ?", entry.ID, model.LedgerPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 || status != model.LedgerFailed {
			return nil
		}
		return s.raiseRejectedAlert(tx, entry, callErr)
	})
	if err != nil {
		// 通道已受理但状态未落库，下一轮用同一幂等键重试不会重复打款
		s.log().Error("Failed to record payout outcome",
			zap.Int64("entry_id", entry.ID),
			zap.String("idempotency_key", entry.PayoutKey()),
			zap.Error(err),
		)
		return ""
	}

	s.Metrics.RecordPayout(ctx, string(status), elapsed)
	fields := []zap.Field{
		zap.Int64("entry_id", entry.ID),
		zap.Int64("user_id", entry.UserID),
		zap.Int64("challenge_id", entry.RelatedChallengeID),
		zap.Int64("amount_cents", -entry.AmountCents),
		zap.String("type", string(entry.Type)),
		zap.String("status", string(status)),
		zap.Int("attempts", entry.Attempts+1),
	}
	switch status {
	case model.LedgerCompleted:
		s.log().Info("Payout completed", append(fields, zap.String("txn_id", result.TransactionID))...)
	case model.LedgerFailed:
		s.log().Error("Payout rejected by processor", append(fields, zap.Error(callErr))...)
	default:
		s.log().Warn("Payout deferred", append(fields, zap.Error(callErr))...)
	}
	return status
}

// raiseRejectedAlert 被拒绝的打款进入人工处理队列
func (s *PayoutService) raiseRejectedAlert(tx *gorm.DB, entry *model.LedgerEntry, cause error) error {
	id, err := s.NextID()
	if err != nil {
		return fmt.Errorf("failed to generate alert id: %w", err)
	}
	alert := &model.OperatorAlert{
		BaseModel: model.BaseModel{ID: id},
		Kind:      model.AlertPayoutRejected,
		Detail: truncate(fmt.Sprintf("%s of %d cents to user %d rejected: %v",
			entry.Type, -entry.AmountCents, entry.UserID, cause), 1024),
		ChallengeID:   entry.RelatedChallengeID,
		LedgerEntryID: entry.ID,
	}
	if err := tx.Create(alert).Error; err != nil {
		return fmt.Errorf("failed to create operator alert: %w", err)
	}
	return nil
}

// requestWithRetry 指数退避重试暂时性失败，总时长受 PayoutTimeout 约束
func (s *PayoutService) requestWithRetry(ctx context.Context, entry *model.LedgerEntry) (*payout.Result, error) {
	callCtx := ctx
	if s.Policy.PayoutTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.Policy.PayoutTimeout)
		defer cancel()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.InitialInterval
	b.MaxElapsedTime = s.Policy.PayoutTimeout

	isRejected := func(err error) bool { return errors.Is(err, errors.PayoutRejected) }

	var result *payout.Result
	op := func() error {
		call := func(ctx context.Context) error {
			r, err := s.Client.RequestPayout(ctx, entry.UserID, -entry.AmountCents, entry.Currency, entry.PayoutKey())
			result = r
			return err
		}

		var err error
		if s.Breaker != nil {
			err = s.Breaker.Call(callCtx, call, isRejected)
		} else {
			err = call(callCtx)
		}
		if err == nil {
			return nil
		}
		if isRejected(err) || errors.Is(err, cache.ErrBreakerOpen) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		s.log().Debug("Retrying payout",
			zap.Int64("entry_id", entry.ID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, s.MaxRetries), callCtx), notify)
	if err != nil {
		if _, ok := errors.As(err); !ok {
			err = fmt.Errorf("%w: %v", errors.PayoutUnavailable, err)
		}
		return nil, err
	}
	return result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
