package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
	"HabitPact/storage/database"
)

const maxDisputeReason = 512

// Verify 伙伴确认一条待核验的打卡，达到法定人数后转为 approved
func (s *CheckInService) Verify(ctx context.Context, logID, verifierID int64) (*model.CheckInLog, error) {
	var log model.CheckInLog
	var approvals int64

	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadLog(tx, logID, &log); err != nil {
			return err
		}
		if log.UserID == verifierID {
			return errors.VerifierNotAllowed
		}
		if log.VerificationStatus != model.VerificationPending {
			return errors.CheckInNotPending
		}

		id, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate verification id: %w", err)
		}
		v := &model.CheckInVerification{
			BaseModel:    model.BaseModel{ID: id},
			CheckInLogID: log.ID,
			VerifierID:   verifierID,
		}
		if err := tx.Create(v).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errors.AlreadyVerified
			}
			return fmt.Errorf("failed to record verification: %w", err)
		}

		if err := tx.Model(&model.CheckInVerification{}).Where("check_in_log_id = ?", log.ID).Count(&approvals).Error; err != nil {
			return fmt.Errorf("failed to count verifications: %w", err)
		}

		var habit model.Habit
		if err := tx.Select("id", "verification_quorum").Where("id = ?", log.HabitID).Take(&habit).Error; err != nil {
			return fmt.Errorf("failed to load habit: %w", err)
		}
		if approvals < int64(s.quorum(habit.VerificationQuorum)) {
			return nil
		}

		now := s.now().UTC()
		res := tx.Model(&model.CheckInLog{}).
			Where("id = ? AND verification_status = ?", log.ID, model.VerificationPending).
			Updates(map[string]interface{}{
				"verification_status": model.VerificationApproved,
				"verified_at":         now,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to approve check-in: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.CheckInNotPending
		}
		log.VerificationStatus = model.VerificationApproved
		log.VerifiedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("Check-in verified",
		zap.Int64("check_in_log_id", logID),
		zap.Int64("verifier_id", verifierID),
		zap.Int64("approvals", approvals),
		zap.String("verification_status", string(log.VerificationStatus)),
	)
	return &log, nil
}

// Dispute 达到法定人数之前提出异议，记录保留连胜但不再计入挑战完成数
func (s *CheckInService) Dispute(ctx context.Context, logID, disputerID int64, reason string) (*model.CheckInLog, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxDisputeReason {
		reason = reason[:maxDisputeReason]
	}

	var log model.CheckInLog
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := loadLog(tx, logID, &log); err != nil {
			return err
		}
		if log.UserID == disputerID {
			return errors.VerifierNotAllowed
		}

		now := s.now().UTC()
		res := tx.Model(&model.CheckInLog{}).
			Where("id = ? AND verification_status = ?", log.ID, model.VerificationPending).
			Updates(map[string]interface{}{
				"verification_status": model.VerificationDisputed,
				"disputed_at":         now,
				"dispute_reason":      reason,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to dispute check-in: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.CheckInNotPending
		}
		log.VerificationStatus = model.VerificationDisputed
		log.DisputedAt = &now
		log.DisputeReason = reason
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("Check-in disputed",
		zap.Int64("check_in_log_id", logID),
		zap.Int64("disputer_id", disputerID),
		zap.Int64("habit_id", log.HabitID),
	)
	return &log, nil
}

func loadLog(tx *gorm.DB, logID int64, log *model.CheckInLog) error {
	if err := tx.Where("id = ?", logID).Take(log).Error; err != nil {
		if database.IsNotFound(err) {
			return errors.CheckInNotFound
		}
		return fmt.Errorf("failed to load check-in: %w", err)
	}
	return nil
}
