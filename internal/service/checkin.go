package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"HabitPact/internal/model"
	"HabitPact/internal/streak"
	"HabitPact/pkg/errors"
	"HabitPact/storage/database"
)

// CheckInStatus 提交结果
type CheckInStatus string

const (
	CheckInAccepted CheckInStatus = "accepted"
	CheckInPending  CheckInStatus = "pending" // 等待伙伴确认
	CheckInRejected CheckInStatus = "rejected"
)

// SubmitRequest 打卡请求，Date 为引擎时区下的日历日期
type SubmitRequest struct {
	Date    time.Time
	Proof   model.Proof
	HabitID int64
	UserID  int64
}

// CheckInResult 打卡结果
type CheckInResult struct {
	Log    *model.CheckInLog `json:"log,omitempty"`
	Status CheckInStatus     `json:"status"`
	Reason string            `json:"reason,omitempty"`
	Streak int               `json:"streak"`
}

// streakStatuses 计入连胜的记录状态
var streakStatuses = []model.CheckInStatus{
	model.CheckInStatusDone,
	model.CheckInStatusFrozen,
	model.CheckInStatusRestored,
}

type CheckInService struct {
	Deps
}

var (
	checkInService *CheckInService
	checkInOnce    sync.Once
)

func CheckIn() *CheckInService {
	checkInOnce.Do(func() {
		checkInService = NewCheckInService(DefaultDeps())
	})
	return checkInService
}

// SetCheckIn 替换进程内单例，handler 测试中注入
func SetCheckIn(svc *CheckInService) {
	checkInOnce.Do(func() {})
	checkInService = svc
}

func NewCheckInService(d Deps) *CheckInService {
	return &CheckInService{Deps: d}
}

// Submit 校验并落库一次打卡。拒绝时同时返回 rejected 结果和对应错误
func (s *CheckInService) Submit(ctx context.Context, req SubmitRequest) (*CheckInResult, error) {
	date := streak.Normalize(req.Date)

	var result *CheckInResult
	var granted *model.StreakMilestoneEvent

	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		habit, err := lockHabit(tx, req.HabitID)
		if err != nil {
			return err
		}
		if err := s.validate(habit, req, date); err != nil {
			return err
		}

		var existing model.CheckInLog
		err = tx.Where("habit_id = ? AND check_in_date = ?", habit.ID, date).Take(&existing).Error
		switch {
		case err == nil:
			if existing.Status != model.CheckInStatusDone || existing.VerificationStatus != model.VerificationPending {
				return errors.AlreadyCheckedIn
			}
			result, err = s.resubmit(tx, &existing, req.Proof)
			return err
		case !database.IsNotFound(err):
			return fmt.Errorf("failed to query existing check-in: %w", err)
		}

		prior, err := priorOf(tx, habit, date)
		if err != nil {
			return err
		}
		value := streak.Next(prior, date, streak.RuleOf(habit))

		now := s.now().UTC()
		id, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate check-in id: %w", err)
		}
		log := &model.CheckInLog{
			BaseModel:          model.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
			CheckInDate:        date,
			Status:             model.CheckInStatusDone,
			VerificationStatus: model.VerificationApproved,
			VerifiedAt:         &now,
			HabitID:            habit.ID,
			UserID:             habit.UserID,
			StreakCountAtLog:   value,
		}
		if habit.VerificationMode == model.VerificationSocial {
			log.VerificationStatus = model.VerificationPending
			log.VerifiedAt = nil
		}
		model.ApplyProof(log, req.Proof)

		if err := tx.Create(log).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errors.AlreadyCheckedIn
			}
			return fmt.Errorf("failed to create check-in: %w", err)
		}

		backfill := habit.LastCheckInDate != nil && date.Before(streak.Normalize(*habit.LastCheckInDate))
		updates := map[string]interface{}{"longest_streak": max(habit.LongestStreak, value)}
		if !backfill {
			updates["current_streak"] = value
			updates["last_check_in_date"] = date
		}
		if err := tx.Model(&model.Habit{}).Where("id = ?", habit.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update habit streak: %w", err)
		}

		prev := 0
		if prior != nil {
			prev = prior.Streak
		}
		if !backfill && streak.CrossedMultiple(prev, value, s.Policy.FreezeEvery) {
			balance, ok, err := s.grantFreeze(tx, habit.UserID, habit.ID)
			if err != nil {
				return err
			}
			if ok {
				granted = &model.StreakMilestoneEvent{
					HabitID:       habit.ID,
					UserID:        habit.UserID,
					Streak:        value,
					FreezeBalance: balance,
				}
				if err := s.writeEvent(tx, model.EventStreakMilestone, habit.ID, granted); err != nil {
					return err
				}
			}
		}

		if err := s.writeEvent(tx, model.EventCheckInAccepted, log.ID, acceptedEvent(log)); err != nil {
			return err
		}

		result = &CheckInResult{Log: log, Status: CheckInAccepted, Streak: value}
		if log.VerificationStatus == model.VerificationPending {
			result.Status = CheckInPending
		}
		return nil
	})

	if err != nil {
		def, ok := errors.As(err)
		if !ok || def.Kind == errors.KindTransient || def.Kind == errors.KindInternal {
			s.log().Error("Failed to submit check-in",
				zap.Int64("habit_id", req.HabitID),
				zap.Int64("user_id", req.UserID),
				zap.Error(err),
			)
			return nil, err
		}

		s.log().Info("Check-in rejected",
			zap.Int64("habit_id", req.HabitID),
			zap.Int64("user_id", req.UserID),
			zap.String("date", date.Format(model.DateLayout)),
			zap.String("reason", def.Code),
		)
		s.Metrics.RecordCheckIn(ctx, string(CheckInRejected), def.Code)
		return &CheckInResult{Status: CheckInRejected, Reason: def.Code}, err
	}

	s.Metrics.RecordCheckIn(ctx, string(result.Status), "")
	fields := []zap.Field{
		zap.Int64("habit_id", req.HabitID),
		zap.Int64("user_id", req.UserID),
		zap.String("date", date.Format(model.DateLayout)),
		zap.String("status", string(result.Status)),
		zap.Int("streak", result.Streak),
	}
	if granted != nil {
		fields = append(fields, zap.Int("freeze_balance", granted.FreezeBalance))
	}
	s.log().Info("Check-in recorded", fields...)
	return result, nil
}

func (s *CheckInService) validate(habit *model.Habit, req SubmitRequest, date time.Time) error {
	if habit.UserID != req.UserID {
		return errors.HabitNotOwned
	}
	if habit.Archived {
		return errors.HabitArchived
	}

	gap := streak.Gap(date, s.today())
	if gap < 0 {
		return errors.CheckInDateInFuture
	}
	if gap > s.Policy.MaxBackfillDays {
		return errors.CheckInBackfillLimit
	}

	if req.Proof == nil {
		if habit.RequiresProof {
			return errors.MissingProof
		}
		return nil
	}
	if !habit.AllowsProof(req.Proof.Type()) {
		return errors.ProofTypeNotAllowed
	}
	if err := req.Proof.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errors.InvalidProof, err)
	}
	return nil
}

// resubmit 待确认的记录允许重新提交证明，已有的确认作废，连胜不重复计算
func (s *CheckInService) resubmit(tx *gorm.DB, log *model.CheckInLog, proof model.Proof) (*CheckInResult, error) {
	model.ApplyProof(log, proof)

	if err := tx.Model(&model.CheckInLog{}).Where("id = ?", log.ID).Updates(map[string]interface{}{
		"proof_type":        log.ProofType,
		"proof_payload_ref": log.ProofPayloadRef,
		"proof_note":        log.ProofNote,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to refresh proof: %w", err)
	}
	if err := tx.Where("check_in_log_id = ?", log.ID).Delete(&model.CheckInVerification{}).Error; err != nil {
		return nil, fmt.Errorf("failed to reset verifiers: %w", err)
	}

	return &CheckInResult{Log: log, Status: CheckInPending, Streak: log.StreakCountAtLog}, nil
}

// History 按日期升序返回 [from, to] 内的打卡记录
func (s *CheckInService) History(ctx context.Context, habitID int64, from, to time.Time) ([]model.CheckInLog, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to is before from", errors.InvalidRequest)
	}

	var logs []model.CheckInLog
	err := s.db(ctx).
		Where("habit_id = ? AND check_in_date >= ? AND check_in_date <= ?", habitID, streak.Normalize(from), streak.Normalize(to)).
		Order("check_in_date ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query check-in history: %w", err)
	}
	return logs, nil
}

// lockHabit 读取并锁住习惯行，同一习惯的写操作串行化
func lockHabit(tx *gorm.DB, habitID int64) (*model.Habit, error) {
	var habit model.Habit
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", habitID).Take(&habit).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.HabitNotFound
		}
		return nil, fmt.Errorf("failed to load habit: %w", err)
	}
	return &habit, nil
}

// priorOf date 之前最近一条计入连胜的记录
func priorOf(tx *gorm.DB, habit *model.Habit, date time.Time) (*streak.Prior, error) {
	var last model.CheckInLog
	err := tx.Where("habit_id = ? AND check_in_date < ? AND status IN ?", habit.ID, date, streakStatuses).
		Order("check_in_date DESC").
		Take(&last).Error
	if database.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query prior check-in: %w", err)
	}

	prior := &streak.Prior{Date: streak.Normalize(last.CheckInDate), Streak: last.StreakCountAtLog}
	if habit.Frequency == model.FrequencyCustom {
		start := streak.WeekStart(prior.Date)
		var n int64
		err := tx.Model(&model.CheckInLog{}).
			Where("habit_id = ? AND check_in_date >= ? AND check_in_date <= ? AND status IN ?",
				habit.ID, start, prior.Date, streakStatuses).
			Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count weekly check-ins: %w", err)
		}
		prior.WeekCompletions = int(n)
	}
	return prior, nil
}

func acceptedEvent(log *model.CheckInLog) model.CheckInAcceptedEvent {
	return model.CheckInAcceptedEvent{
		CreatedAt:    log.CreatedAt,
		CheckInDate:  log.CheckInDate.Format(model.DateLayout),
		Status:       string(log.Status),
		CheckInLogID: log.ID,
		HabitID:      log.HabitID,
		UserID:       log.UserID,
		Streak:       log.StreakCountAtLog,
	}
}
