package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/pkg/billing"
	"HabitPact/pkg/errors"
	"HabitPact/storage/database"
)

var errRestoreReplay = stderrors.New("payment already applied")

// RestoreRequest 付费恢复连胜
type RestoreRequest struct {
	PaymentRef string
	UserID     int64
	HabitID    int64
	ToValue    int
}

// RestoreStreak 支付确认后把昨天补为 restored 并恢复连胜。同一笔支付重放时返回首次结果
func (s *FreezeService) RestoreStreak(ctx context.Context, req RestoreRequest) (*model.StreakRestoration, error) {
	req.PaymentRef = strings.TrimSpace(req.PaymentRef)
	if req.PaymentRef == "" {
		return nil, fmt.Errorf("%w: payment_ref is required", errors.InvalidRequest)
	}

	if existing, err := s.findRestoration(ctx, req); err != nil || existing != nil {
		return existing, err
	}

	if err := s.confirmPayment(ctx, s.Payments, s.Breaker, req.PaymentRef); err != nil {
		return nil, err
	}

	var restoration *model.StreakRestoration
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := lockHabit(tx, req.HabitID)
		if err != nil {
			return err
		}
		if habit.UserID != req.UserID {
			return errors.HabitNotOwned
		}
		if req.ToValue < 1 || req.ToValue > habit.LongestStreak {
			return fmt.Errorf("%w: to_value must be within [1, %d]", errors.StreakRestoreInvalid, habit.LongestStreak)
		}

		today := s.today()
		yesterday := today.AddDate(0, 0, -1)
		var recent int64
		if err := tx.Model(&model.CheckInLog{}).
			Where("habit_id = ? AND check_in_date IN ?", habit.ID, []interface{}{today, yesterday}).
			Count(&recent).Error; err != nil {
			return fmt.Errorf("failed to query recent check-ins: %w", err)
		}
		if recent > 0 {
			return fmt.Errorf("%w: a check-in already exists for today or yesterday", errors.StreakRestoreInvalid)
		}

		logID, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate check-in id: %w", err)
		}
		restoreID, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate restoration id: %w", err)
		}

		restoration = &model.StreakRestoration{
			BaseModel:    model.BaseModel{ID: restoreID},
			PaymentRef:   req.PaymentRef,
			UserID:       req.UserID,
			HabitID:      habit.ID,
			CheckInLogID: logID,
			FromValue:    habit.CurrentStreak,
			ToValue:      req.ToValue,
		}
		if err := tx.Create(restoration).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errRestoreReplay
			}
			return fmt.Errorf("failed to record restoration: %w", err)
		}

		now := s.now().UTC()
		log := &model.CheckInLog{
			BaseModel:          model.BaseModel{ID: logID, CreatedAt: now, UpdatedAt: now},
			CheckInDate:        yesterday,
			Status:             model.CheckInStatusRestored,
			ProofType:          model.ProofTypeNone,
			VerificationStatus: model.VerificationApproved,
			VerifiedAt:         &now,
			HabitID:            habit.ID,
			UserID:             req.UserID,
			StreakCountAtLog:   req.ToValue,
		}
		if err := tx.Create(log).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: yesterday was checked in concurrently", errors.StreakRestoreInvalid)
			}
			return fmt.Errorf("failed to create restored check-in: %w", err)
		}

		return tx.Model(&model.Habit{}).Where("id = ?", habit.ID).Updates(map[string]interface{}{
			"current_streak":     req.ToValue,
			"last_check_in_date": yesterday,
		}).Error
	})

	if stderrors.Is(err, errRestoreReplay) {
		return s.findRestoration(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	s.log().Info("Streak restored",
		zap.Int64("habit_id", req.HabitID),
		zap.Int64("user_id", req.UserID),
		zap.String("payment_ref", req.PaymentRef),
		zap.Int("from", restoration.FromValue),
		zap.Int("to", restoration.ToValue),
	)
	return restoration, nil
}

// findRestoration 同一笔支付只能用于同一用户的同一习惯
func (s *FreezeService) findRestoration(ctx context.Context, req RestoreRequest) (*model.StreakRestoration, error) {
	var existing model.StreakRestoration
	err := s.db(ctx).Where("payment_ref = ?", req.PaymentRef).Take(&existing).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query restoration: %w", err)
	}
	if existing.UserID != req.UserID || existing.HabitID != req.HabitID {
		return nil, fmt.Errorf("%w: payment already used", errors.StreakRestoreInvalid)
	}
	return &existing, nil
}

// confirmPayment 经熔断器向账单服务确认付款
func (d Deps) confirmPayment(ctx context.Context, payments billing.Verifier, breaker *cache.CircuitBreaker, paymentRef string) error {
	if payments == nil {
		return errors.BillingUnavailable
	}

	var confirmed bool
	call := func(ctx context.Context) error {
		ok, err := payments.IsConfirmed(ctx, paymentRef)
		confirmed = ok
		return err
	}

	var err error
	if breaker != nil {
		err = breaker.Call(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		d.log().Warn("Payment verification failed",
			zap.String("payment_ref", paymentRef),
			zap.Error(err),
		)
		if _, ok := errors.As(err); ok {
			return err
		}
		return fmt.Errorf("%w: %v", errors.BillingUnavailable, err)
	}
	if !confirmed {
		return errors.PaymentNotConfirmed
	}
	return nil
}
