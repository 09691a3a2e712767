package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/internal/streak"
	"HabitPact/pkg/billing"
	"HabitPact/pkg/errors"
	"HabitPact/storage/database"
)

// errFreezeLost 并发消费同一天时输掉的一方，回滚已做的扣减
var errFreezeLost = stderrors.New("freeze already applied for date")

type FreezeService struct {
	Deps
	Payments billing.Verifier
	Breaker  *cache.CircuitBreaker
}

var (
	freezeService *FreezeService
	freezeOnce    sync.Once
)

func Freeze() *FreezeService {
	freezeOnce.Do(func() {
		freezeService = NewFreezeService(DefaultDeps(), billing.GetVerifier())
		freezeService.Breaker = cache.BillingBreaker
	})
	return freezeService
}

func NewFreezeService(d Deps, payments billing.Verifier) *FreezeService {
	return &FreezeService{Deps: d, Payments: payments}
}

// ConsumeFreeze 用一张冻结卡保住昨天漏掉的打卡，返回是否生效
func (s *FreezeService) ConsumeFreeze(ctx context.Context, userID, habitID int64, missedDate time.Time) (bool, error) {
	missed := streak.Normalize(missedDate)
	if !missed.Equal(s.today().AddDate(0, 0, -1)) {
		return false, nil
	}

	consumed := false
	var carried int

	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := lockHabit(tx, habitID)
		if err != nil {
			return err
		}
		if habit.UserID != userID {
			return errors.HabitNotOwned
		}
		if habit.Frequency == model.FrequencyCustom {
			return nil
		}
		if habit.Frequency == model.FrequencyWeekdays && (missed.Weekday() == time.Saturday || missed.Weekday() == time.Sunday) {
			return nil
		}

		var later int64
		if err := tx.Model(&model.CheckInLog{}).
			Where("habit_id = ? AND check_in_date >= ?", habit.ID, missed).
			Count(&later).Error; err != nil {
			return fmt.Errorf("failed to query check-ins: %w", err)
		}
		if later > 0 {
			return nil
		}

		prior, err := priorOf(tx, habit, missed)
		if err != nil {
			return err
		}
		if prior == nil || prior.Streak < 1 || !streak.Continues(streak.RuleOf(habit), *prior, missed) {
			return nil
		}

		res := tx.Model(&model.FreezeTokenBalance{}).
			Where("user_id = ? AND habit_id = ? AND balance > 0", userID, habit.ID).
			Updates(map[string]interface{}{
				"balance":       gorm.Expr("balance - 1"),
				"lifetime_used": gorm.Expr("lifetime_used + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to consume freeze token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		id, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate check-in id: %w", err)
		}
		now := s.now().UTC()
		log := &model.CheckInLog{
			BaseModel:          model.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
			CheckInDate:        missed,
			Status:             model.CheckInStatusFrozen,
			ProofType:          model.ProofTypeNone,
			VerificationStatus: model.VerificationApproved,
			VerifiedAt:         &now,
			HabitID:            habit.ID,
			UserID:             userID,
			StreakCountAtLog:   prior.Streak,
		}
		if err := tx.Create(log).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errFreezeLost
			}
			return fmt.Errorf("failed to create frozen check-in: %w", err)
		}

		if err := tx.Model(&model.Habit{}).Where("id = ?", habit.ID).
			Update("last_check_in_date", missed).Error; err != nil {
			return fmt.Errorf("failed to update habit: %w", err)
		}

		consumed = true
		carried = prior.Streak
		return nil
	})

	if stderrors.Is(err, errFreezeLost) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if consumed {
		s.Metrics.RecordFreezeConsumed(ctx)
		s.log().Info("Freeze token consumed",
			zap.Int64("habit_id", habitID),
			zap.Int64("user_id", userID),
			zap.String("missed_date", missed.Format(model.DateLayout)),
			zap.Int("streak", carried),
		)
	}
	return consumed, nil
}

// Balance 查询冻结卡余额，从未获得过时返回零值
func (s *FreezeService) Balance(ctx context.Context, userID, habitID int64) (*model.FreezeTokenBalance, error) {
	var bal model.FreezeTokenBalance
	err := s.db(ctx).Where("user_id = ? AND habit_id = ?", userID, habitID).Take(&bal).Error
	if database.IsNotFound(err) {
		return &model.FreezeTokenBalance{UserID: userID, HabitID: habitID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load freeze balance: %w", err)
	}
	return &bal, nil
}

// grantFreeze 在打卡事务内发放一张冻结卡，已达上限时不发放
func (d Deps) grantFreeze(tx *gorm.DB, userID, habitID int64) (int, bool, error) {
	if d.Policy.FreezeMax <= 0 {
		return 0, false, nil
	}

	var bal model.FreezeTokenBalance
	err := tx.Where("user_id = ? AND habit_id = ?", userID, habitID).Take(&bal).Error
	if database.IsNotFound(err) {
		id, err := d.NextID()
		if err != nil {
			return 0, false, fmt.Errorf("failed to generate balance id: %w", err)
		}
		bal = model.FreezeTokenBalance{
			BaseModel:      model.BaseModel{ID: id},
			UserID:         userID,
			HabitID:        habitID,
			Balance:        1,
			LifetimeEarned: 1,
		}
		if err := tx.Create(&bal).Error; err != nil {
			return 0, false, fmt.Errorf("failed to create freeze balance: %w", err)
		}
		return bal.Balance, true, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to load freeze balance: %w", err)
	}

	res := tx.Model(&model.FreezeTokenBalance{}).
		Where("id = ? AND balance < ?", bal.ID, d.Policy.FreezeMax).
		Updates(map[string]interface{}{
			"balance":         gorm.Expr("balance + 1"),
			"lifetime_earned": gorm.Expr("lifetime_earned + 1"),
		})
	if res.Error != nil {
		return 0, false, fmt.Errorf("failed to grant freeze token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return bal.Balance, false, nil
	}
	return bal.Balance + 1, true, nil
}
