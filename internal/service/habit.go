package service

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
	"HabitPact/storage/database"
)

// CreateHabitRequest 新建习惯
type CreateHabitRequest struct {
	Name               string                 `json:"name" validate:"required,max=128"`
	Frequency          model.Frequency        `json:"frequency" validate:"required,oneof=daily weekdays custom"`
	VerificationMode   model.VerificationMode `json:"verification_mode" validate:"omitempty,oneof=self social"`
	ProofTypesAllowed  []model.ProofType      `json:"proof_types_allowed" validate:"dive,oneof=photo note"`
	UserID             int64                  `json:"user_id,string" validate:"required"`
	PerWeekTarget      int                    `json:"per_week_target" validate:"gte=0,lte=7"`
	VerificationQuorum int                    `json:"verification_quorum" validate:"gte=0,lte=20"`
	RequiresProof      bool                   `json:"requires_proof"`
}

type HabitService struct {
	Deps
	validate *validator.Validate
}

var (
	habitService *HabitService
	habitOnce    sync.Once
)

func Habit() *HabitService {
	habitOnce.Do(func() {
		habitService = NewHabitService(DefaultDeps())
	})
	return habitService
}

func NewHabitService(d Deps) *HabitService {
	return &HabitService{Deps: d, validate: validator.New()}
}

// Create 连胜从零开始，之后只能经由打卡改变
func (s *HabitService) Create(ctx context.Context, req CreateHabitRequest) (*model.Habit, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.InvalidRequest, err)
	}
	if req.Frequency == model.FrequencyCustom && req.PerWeekTarget < 1 {
		return nil, fmt.Errorf("%w: per_week_target is required for custom frequency", errors.InvalidRequest)
	}
	if req.Frequency != model.FrequencyCustom {
		req.PerWeekTarget = 0
	}
	if req.VerificationMode == "" {
		req.VerificationMode = model.VerificationSelf
	}

	allowed := make([]string, 0, len(req.ProofTypesAllowed))
	for _, t := range req.ProofTypesAllowed {
		allowed = append(allowed, string(t))
	}

	id, err := s.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate habit id: %w", err)
	}
	now := s.now().UTC()
	habit := &model.Habit{
		BaseModel:          model.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
		Name:               strings.TrimSpace(req.Name),
		Frequency:          req.Frequency,
		ProofTypesAllowed:  strings.Join(allowed, ","),
		VerificationMode:   req.VerificationMode,
		UserID:             req.UserID,
		PerWeekTarget:      req.PerWeekTarget,
		VerificationQuorum: req.VerificationQuorum,
		RequiresProof:      req.RequiresProof,
	}
	if err := s.db(ctx).Create(habit).Error; err != nil {
		return nil, fmt.Errorf("failed to create habit: %w", err)
	}

	s.log().Info("Habit created",
		zap.Int64("habit_id", habit.ID),
		zap.Int64("user_id", habit.UserID),
		zap.String("frequency", string(habit.Frequency)),
	)
	return habit, nil
}

func (s *HabitService) Get(ctx context.Context, habitID int64) (*model.Habit, error) {
	var habit model.Habit
	err := s.db(ctx).Where("id = ?", habitID).Take(&habit).Error
	if database.IsNotFound(err) {
		return nil, errors.HabitNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load habit: %w", err)
	}
	return &habit, nil
}

// Archive 归档后拒绝新的打卡，历史记录保留
func (s *HabitService) Archive(ctx context.Context, habitID, userID int64) (*model.Habit, error) {
	habit, err := s.Get(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, errors.HabitNotOwned
	}
	if habit.Archived {
		return habit, nil
	}

	if err := s.db(ctx).Model(&model.Habit{}).Where("id = ?", habitID).
		Updates(map[string]interface{}{"archived": true, "updated_at": s.now().UTC()}).Error; err != nil {
		return nil, fmt.Errorf("failed to archive habit: %w", err)
	}
	habit.Archived = true

	s.log().Info("Habit archived", zap.Int64("habit_id", habitID), zap.Int64("user_id", userID))
	return habit, nil
}
