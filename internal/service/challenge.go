package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"HabitPact/internal/cache"
	"HabitPact/internal/model"
	"HabitPact/internal/streak"
	"HabitPact/pkg/billing"
	"HabitPact/pkg/errors"
	"HabitPact/storage/database"
)

// CreateChallengeRequest 创建挑战
type CreateChallengeRequest struct {
	StartDate         time.Time           `json:"start_date" validate:"required"`
	Title             string              `json:"title" validate:"required,max=128"`
	Type              model.ChallengeType `json:"type" validate:"required,oneof=solo 1v1 group public"`
	StakeType         model.StakeType     `json:"stake_type" validate:"required,oneof=winner_takes_all split_winners charity"`
	Currency          string              `json:"currency" validate:"omitempty,len=3,alpha"`
	CreatorID         int64               `json:"creator_id,string" validate:"required"`
	StakeAmountCents  int64               `json:"stake_amount_cents" validate:"gte=0"`
	DurationDays      int                 `json:"duration_days" validate:"gte=1,lte=366"`
	TargetCompletions int                 `json:"target_completions" validate:"gte=1,ltefield=DurationDays"`
}

// StakeUpdate 开始前修改押金条款
type StakeUpdate struct {
	StakeType        model.StakeType `json:"stake_type" validate:"omitempty,oneof=winner_takes_all split_winners charity"`
	StakeAmountCents int64           `json:"stake_amount_cents" validate:"gte=0"`
}

// ChallengeDetail 挑战及其参与者
type ChallengeDetail struct {
	Challenge    *model.Challenge             `json:"challenge"`
	Participants []model.ChallengeParticipant `json:"participants"`
}

type ChallengeService struct {
	Deps
	Settlements *SettlementService
	Payments    billing.Verifier
	Breaker     *cache.CircuitBreaker
	validate    *validator.Validate
}

var (
	challengeService *ChallengeService
	challengeOnce    sync.Once
)

func Challenge() *ChallengeService {
	challengeOnce.Do(func() {
		challengeService = NewChallengeService(DefaultDeps(), Settlement(), billing.GetVerifier())
		challengeService.Breaker = cache.BillingBreaker
	})
	return challengeService
}

func NewChallengeService(d Deps, settlements *SettlementService, payments billing.Verifier) *ChallengeService {
	return &ChallengeService{
		Deps:        d,
		Settlements: settlements,
		Payments:    payments,
		validate:    validator.New(),
	}
}

// Create 创建 pending 状态的挑战
func (s *ChallengeService) Create(ctx context.Context, req CreateChallengeRequest) (*model.Challenge, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ChallengeInvalid, err)
	}

	start := streak.Normalize(req.StartDate)
	if start.Before(s.today()) {
		return nil, fmt.Errorf("%w: start_date is in the past", errors.ChallengeInvalid)
	}

	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = s.Policy.Currency
	}

	id, err := s.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge id: %w", err)
	}
	now := s.now().UTC()
	ch := &model.Challenge{
		BaseModel:         model.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
		StartDate:         start,
		EndDate:           model.WindowEnd(start, req.DurationDays),
		Title:             strings.TrimSpace(req.Title),
		Type:              req.Type,
		Status:            model.ChallengeStatusPending,
		StakeCurrency:     currency,
		StakeType:         req.StakeType,
		CreatorID:         req.CreatorID,
		StakeAmountCents:  req.StakeAmountCents,
		DurationDays:      req.DurationDays,
		TargetCompletions: req.TargetCompletions,
	}
	if err := s.db(ctx).Create(ch).Error; err != nil {
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}

	s.log().Info("Challenge created",
		zap.Int64("challenge_id", ch.ID),
		zap.Int64("creator_id", ch.CreatorID),
		zap.String("type", string(ch.Type)),
		zap.String("stake_type", string(ch.StakeType)),
		zap.Int64("stake_amount_cents", ch.StakeAmountCents),
		zap.String("start_date", ch.StartDate.Format(model.DateLayout)),
	)
	return ch, nil
}

// Get 挑战详情
func (s *ChallengeService) Get(ctx context.Context, challengeID int64) (*ChallengeDetail, error) {
	ch, err := s.Settlements.loadChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	var participants []model.ChallengeParticipant
	if err := s.db(ctx).Where("challenge_id = ?", challengeID).Order("joined_at ASC").Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	return &ChallengeDetail{Challenge: ch, Participants: participants}, nil
}

// UpdateStake 仅在 pending 且无人付款时允许修改押金条款
func (s *ChallengeService) UpdateStake(ctx context.Context, challengeID, actorID int64, upd StakeUpdate) error {
	if err := s.validate.Struct(upd); err != nil {
		return fmt.Errorf("%w: %v", errors.ChallengeInvalid, err)
	}

	return s.db(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := lockChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if ch.CreatorID != actorID {
			return errors.StakeImmutable
		}

		var paid int64
		if err := tx.Model(&model.ChallengeParticipant{}).
			Where("challenge_id = ? AND stake_paid = ?", ch.ID, true).
			Count(&paid).Error; err != nil {
			return fmt.Errorf("failed to count paid stakes: %w", err)
		}
		if paid > 0 {
			return errors.StakeImmutable
		}

		updates := map[string]interface{}{"stake_amount_cents": upd.StakeAmountCents}
		if upd.StakeType != "" {
			updates["stake_type"] = upd.StakeType
		}
		res := tx.Model(&model.Challenge{}).
			Where("id = ? AND status = ?", ch.ID, model.ChallengeStatusPending).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to update stake: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.StakeImmutable
		}
		return nil
	})
}

// Join 开始前加入挑战，并指定用于计数的习惯
func (s *ChallengeService) Join(ctx context.Context, challengeID, userID, habitID int64) (*model.ChallengeParticipant, error) {
	var participant *model.ChallengeParticipant

	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := lockChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if ch.Status != model.ChallengeStatusPending || s.today().After(streak.Normalize(ch.StartDate)) {
			return errors.ChallengeNotJoinable
		}

		var habit model.Habit
		if err := tx.Where("id = ?", habitID).Take(&habit).Error; err != nil {
			if database.IsNotFound(err) {
				return errors.HabitNotFound
			}
			return fmt.Errorf("failed to load habit: %w", err)
		}
		if habit.UserID != userID {
			return errors.HabitNotOwned
		}
		if habit.Archived {
			return errors.HabitArchived
		}

		if capacity := ch.Type.MaxParticipants(); capacity > 0 {
			var joined int64
			if err := tx.Model(&model.ChallengeParticipant{}).
				Where("challenge_id = ? AND status = ?", ch.ID, model.ParticipantJoined).
				Count(&joined).Error; err != nil {
				return fmt.Errorf("failed to count participants: %w", err)
			}
			if joined >= int64(capacity) {
				return errors.ChallengeFull
			}
		}

		id, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate participant id: %w", err)
		}
		now := s.now().UTC()
		participant = &model.ChallengeParticipant{
			BaseModel:   model.BaseModel{ID: id, CreatedAt: now, UpdatedAt: now},
			JoinedAt:    now,
			Status:      model.ParticipantJoined,
			ChallengeID: ch.ID,
			UserID:      userID,
			HabitID:     habit.ID,
		}
		if err := tx.Create(participant).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errors.AlreadyJoined
			}
			return fmt.Errorf("failed to join challenge: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("Challenge joined",
		zap.Int64("challenge_id", challengeID),
		zap.Int64("user_id", userID),
		zap.Int64("habit_id", habitID),
	)
	return participant, nil
}

// ConfirmStake 账单确认押金到账后记入 stake 条目；重复确认是幂等的
func (s *ChallengeService) ConfirmStake(ctx context.Context, challengeID, userID int64, paymentRef string) (*model.ChallengeParticipant, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if paymentRef == "" {
		return nil, fmt.Errorf("%w: payment_ref is required", errors.InvalidRequest)
	}

	ch, err := s.Settlements.loadChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if ch.StakeAmountCents > 0 {
		if err := s.confirmPayment(ctx, s.Payments, s.Breaker, paymentRef); err != nil {
			return nil, err
		}
	}

	var participant model.ChallengeParticipant
	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := lockChallenge(tx, challengeID)
		if err != nil {
			return err
		}

		if err := tx.Where("challenge_id = ? AND user_id = ?", ch.ID, userID).Take(&participant).Error; err != nil {
			if database.IsNotFound(err) {
				return errors.NotParticipant
			}
			return fmt.Errorf("failed to load participant: %w", err)
		}
		if participant.StakePaid {
			return nil
		}
		if ch.Status != model.ChallengeStatusPending || participant.Status != model.ParticipantJoined {
			return errors.ChallengeNotJoinable
		}

		now := s.now().UTC()
		if err := tx.Model(&model.ChallengeParticipant{}).Where("id = ?", participant.ID).Updates(map[string]interface{}{
			"stake_paid":        true,
			"stake_paid_at":     now,
			"stake_payment_ref": paymentRef,
		}).Error; err != nil {
			return fmt.Errorf("failed to mark stake paid: %w", err)
		}
		participant.StakePaid = true
		participant.StakePaidAt = &now
		participant.StakePaymentRef = paymentRef

		if ch.StakeAmountCents == 0 {
			return nil
		}
		return s.appendEntries(tx, []model.LedgerEntry{{
			Type:               model.LedgerStake,
			Currency:           ch.StakeCurrency,
			Status:             model.LedgerCompleted,
			IdempotencyKey:     fmt.Sprintf("stake:%d:%d", ch.ID, userID),
			ExternalTxnID:      paymentRef,
			AmountCents:        ch.StakeAmountCents,
			UserID:             userID,
			RelatedChallengeID: ch.ID,
			CompletedAt:        &now,
		}})
	})
	if err != nil {
		return nil, err
	}

	s.log().Info("Stake confirmed",
		zap.Int64("challenge_id", challengeID),
		zap.Int64("user_id", userID),
		zap.Int64("amount_cents", ch.StakeAmountCents),
		zap.String("payment_ref", paymentRef),
	)
	return &participant, nil
}

// Cancel 创建者在开始前、无人付款时取消挑战
func (s *ChallengeService) Cancel(ctx context.Context, challengeID, actorID int64) (*model.Challenge, error) {
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		ch, err := lockChallenge(tx, challengeID)
		if err != nil {
			return err
		}
		if ch.CreatorID != actorID || ch.Status != model.ChallengeStatusPending || !s.today().Before(streak.Normalize(ch.StartDate)) {
			return errors.ChallengeNotCancellable
		}

		var paid int64
		if err := tx.Model(&model.ChallengeParticipant{}).
			Where("challenge_id = ? AND stake_paid = ?", ch.ID, true).
			Count(&paid).Error; err != nil {
			return fmt.Errorf("failed to count paid stakes: %w", err)
		}
		if paid > 0 {
			return errors.ChallengeNotCancellable
		}

		return s.transition(tx, ch, model.ChallengeStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	return s.afterTerminal(ctx, challengeID)
}

// Evaluate 根据当前时间与参与情况推进状态。条件更新保证每个迁移只有一个调用方生效
func (s *ChallengeService) Evaluate(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	ch, err := s.Settlements.loadChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	if ch.Status == model.ChallengeStatusPending {
		if today.Before(streak.Normalize(ch.StartDate)) {
			return ch, nil
		}
		if ch, err = s.activate(ctx, ch); err != nil {
			return nil, err
		}
	}

	if ch.Status == model.ChallengeStatusActive {
		if ch, err = s.evaluateActive(ctx, ch, today); err != nil {
			return nil, err
		}
	}

	if ch.Status.Terminal() {
		return s.afterTerminal(ctx, ch.ID)
	}
	return ch, nil
}

// activate 开始日：剔除未付款者，人数不足则取消
func (s *ChallengeService) activate(ctx context.Context, ch *model.Challenge) (*model.Challenge, error) {
	var dropped, paid int64
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.ChallengeParticipant{}).
			Where("challenge_id = ? AND status = ? AND stake_paid = ?", ch.ID, model.ParticipantJoined, false).
			Update("status", model.ParticipantDropped)
		if res.Error != nil {
			return fmt.Errorf("failed to drop unpaid participants: %w", res.Error)
		}
		dropped = res.RowsAffected

		if err := tx.Model(&model.ChallengeParticipant{}).
			Where("challenge_id = ? AND stake_paid = ?", ch.ID, true).
			Count(&paid).Error; err != nil {
			return fmt.Errorf("failed to count paid participants: %w", err)
		}

		to := model.ChallengeStatusActive
		if paid < int64(ch.Type.MinParticipants()) {
			to = model.ChallengeStatusCancelled
		}
		return s.transition(tx, ch, to)
	})
	if errors.Is(err, errors.ChallengeTransitionConflict) {
		return s.Settlements.loadChallenge(ctx, ch.ID)
	}
	if err != nil {
		return nil, err
	}

	s.log().Info("Challenge start evaluated",
		zap.Int64("challenge_id", ch.ID),
		zap.String("status", string(ch.Status)),
		zap.Int64("paid_participants", paid),
		zap.Int64("dropped", dropped),
	)
	return ch, nil
}

// evaluateActive 全员达标提前完成；到期后有人达标为 completed，否则 expired
func (s *ChallengeService) evaluateActive(ctx context.Context, ch *model.Challenge, today time.Time) (*model.Challenge, error) {
	var participants []model.ChallengeParticipant
	if err := s.db(ctx).Where("challenge_id = ? AND stake_paid = ?", ch.ID, true).Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}

	counts, err := s.completions(s.db(ctx), ch, participants)
	if err != nil {
		return nil, err
	}

	qualified := 0
	for _, p := range participants {
		if counts[p.UserID] >= ch.TargetCompletions {
			qualified++
		}
	}

	deadline := !today.Before(streak.Normalize(ch.EndDate))
	var to model.ChallengeStatus
	switch {
	case len(participants) > 0 && qualified == len(participants):
		to = model.ChallengeStatusCompleted
	case deadline && qualified > 0:
		to = model.ChallengeStatusCompleted
	case deadline:
		to = model.ChallengeStatusExpired
	default:
		return ch, nil
	}

	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		for _, p := range participants {
			if p.Completions == counts[p.UserID] {
				continue
			}
			if err := tx.Model(&model.ChallengeParticipant{}).Where("id = ?", p.ID).
				Update("completions", counts[p.UserID]).Error; err != nil {
				return fmt.Errorf("failed to sync completions: %w", err)
			}
		}
		return s.transition(tx, ch, to)
	})
	if errors.Is(err, errors.ChallengeTransitionConflict) {
		return s.Settlements.loadChallenge(ctx, ch.ID)
	}
	if err != nil {
		return nil, err
	}

	s.log().Info("Challenge ended",
		zap.Int64("challenge_id", ch.ID),
		zap.String("status", string(ch.Status)),
		zap.Int("participants", len(participants)),
		zap.Int("qualified", qualified),
	)
	return ch, nil
}

// transition 条件更新 status，未命中说明已被其他调用方推进
func (s *ChallengeService) transition(tx *gorm.DB, ch *model.Challenge, to model.ChallengeStatus) error {
	from := ch.Status
	now := s.now().UTC()

	updates := map[string]interface{}{"status": to}
	if to == model.ChallengeStatusActive {
		updates["activated_at"] = now
	} else {
		updates["ended_at"] = now
	}

	res := tx.Model(&model.Challenge{}).Where("id = ? AND status = ?", ch.ID, from).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to transition challenge: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.ChallengeTransitionConflict
	}

	ch.Status = to
	if to == model.ChallengeStatusActive {
		ch.ActivatedAt = &now
	} else {
		ch.EndedAt = &now
	}
	s.Metrics.RecordTransition(tx.Statement.Context, string(from), string(to))
	return nil
}

// afterTerminal 进入终态后触发结算；结算失败不影响已提交的迁移，由调度补偿
func (s *ChallengeService) afterTerminal(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	if _, err := s.Settlements.Settle(ctx, challengeID); err != nil && !errors.Is(err, errors.SettlementConflict) {
		s.log().Warn("Settlement after transition failed",
			zap.Int64("challenge_id", challengeID),
			zap.String("kind", string(errors.KindOf(err))),
			zap.Error(err),
		)
		return nil, err
	}
	return s.Settlements.loadChallenge(ctx, challengeID)
}

// ApplyCheckIn 把一次被接受的打卡计入进行中挑战的进度，重复事件不重复计数
func (s *ChallengeService) ApplyCheckIn(ctx context.Context, ev model.CheckInAcceptedEvent) error {
	if ev.Status != string(model.CheckInStatusDone) {
		return nil
	}
	date, err := time.Parse(model.DateLayout, ev.CheckInDate)
	if err != nil {
		return fmt.Errorf("%w: bad check_in_date %q", errors.InvalidRequest, ev.CheckInDate)
	}

	var rows []struct {
		ChallengeID int64
		ID          int64
	}
	err = s.db(ctx).Model(&model.ChallengeParticipant{}).
		Select("challenge_participants.challenge_id, challenge_participants.id").
		Joins("JOIN challenges ON challenges.id = challenge_participants.challenge_id").
		Where("challenge_participants.habit_id = ? AND challenge_participants.user_id = ?", ev.HabitID, ev.UserID).
		Where("challenge_participants.stake_paid = ? AND challenges.status = ?", true, model.ChallengeStatusActive).
		Scan(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to find active challenges: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ChallengeID)
	}
	var challenges []model.Challenge
	if err := s.db(ctx).Where("id IN ?", ids).Find(&challenges).Error; err != nil {
		return fmt.Errorf("failed to load challenges: %w", err)
	}
	byID := make(map[int64]*model.Challenge, len(challenges))
	for i := range challenges {
		byID[challenges[i].ID] = &challenges[i]
	}

	for _, row := range rows {
		ch, ok := byID[row.ChallengeID]
		if !ok || !ch.InWindow(date) {
			continue
		}
		// 截止后才写入的打卡（补打卡）不计入
		if !ev.CreatedAt.IsZero() && !ev.CreatedAt.Before(s.deadline(ch)) {
			s.log().Debug("Check-in recorded after deadline ignored",
				zap.Int64("challenge_id", ch.ID),
				zap.Int64("check_in_log_id", ev.CheckInLogID),
			)
			continue
		}
		applied, err := s.applyProgress(ctx, row.ChallengeID, row.ID, ev)
		if err != nil {
			return err
		}
		if !applied {
			continue
		}
		if _, err := s.Evaluate(ctx, row.ChallengeID); err != nil && errors.KindOf(err) != errors.KindConflict {
			return err
		}
	}
	return nil
}

func (s *ChallengeService) applyProgress(ctx context.Context, challengeID, participantID int64, ev model.CheckInAcceptedEvent) (bool, error) {
	applied := false
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		var ch model.Challenge
		if err := tx.Select("id", "status").Where("id = ?", challengeID).Take(&ch).Error; err != nil {
			return fmt.Errorf("failed to load challenge: %w", err)
		}
		if ch.Status != model.ChallengeStatusActive {
			return nil
		}

		id, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate progress id: %w", err)
		}
		progress := &model.ChallengeProgress{
			BaseModel:    model.BaseModel{ID: id},
			ChallengeID:  challengeID,
			CheckInLogID: ev.CheckInLogID,
			UserID:       ev.UserID,
		}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(progress)
		if res.Error != nil {
			return fmt.Errorf("failed to record progress: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&model.ChallengeParticipant{}).Where("id = ?", participantID).
			Update("completions", gorm.Expr("completions + 1")).Error; err != nil {
			return fmt.Errorf("failed to increment completions: %w", err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if applied {
		s.log().Debug("Challenge progress applied",
			zap.Int64("challenge_id", challengeID),
			zap.Int64("user_id", ev.UserID),
			zap.Int64("check_in_log_id", ev.CheckInLogID),
		)
	}
	return applied, nil
}

// DueForEvaluation 开始日已到的 pending 与截止日已到的 active 挑战
func (s *ChallengeService) DueForEvaluation(ctx context.Context, limit int) ([]int64, error) {
	today := s.today()
	var ids []int64
	err := s.db(ctx).Model(&model.Challenge{}).
		Where("(status = ? AND start_date <= ?) OR (status = ? AND end_date <= ?)",
			model.ChallengeStatusPending, today, model.ChallengeStatusActive, today).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due challenges: %w", err)
	}
	return ids, nil
}

// completions 按打卡记录重新计算完成数：窗口内的 done 记录，创建于截止时刻之前，
// 且截止前未被提出异议。截止取结束时间（进行中为当前时间）与 deadline 中较早者
func (d Deps) completions(db *gorm.DB, ch *model.Challenge, participants []model.ChallengeParticipant) (map[int64]int, error) {
	deadline := d.deadline(ch)
	cutoff := d.now().UTC()
	if ch.EndedAt != nil {
		cutoff = ch.EndedAt.UTC()
	}
	if cutoff.After(deadline) {
		cutoff = deadline
	}

	counts := make(map[int64]int, len(participants))
	for _, p := range participants {
		var n int64
		err := db.Model(&model.CheckInLog{}).
			Where("habit_id = ? AND user_id = ? AND status = ?", p.HabitID, p.UserID, model.CheckInStatusDone).
			Where("check_in_date >= ? AND check_in_date < ?", streak.Normalize(ch.StartDate), streak.Normalize(ch.EndDate)).
			Where("created_at <= ? AND created_at < ?", cutoff, deadline).
			Where("(disputed_at IS NULL OR disputed_at > ?)", cutoff).
			Count(&n).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count completions: %w", err)
		}
		counts[p.UserID] = int(n)
	}
	return counts, nil
}

func lockChallenge(tx *gorm.DB, challengeID int64) (*model.Challenge, error) {
	var ch model.Challenge
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", challengeID).Take(&ch).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	return &ch, nil
}
