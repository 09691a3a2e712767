package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"HabitPact/internal/model"
	"HabitPact/internal/settlement"
	"HabitPact/pkg/errors"
	"HabitPact/storage/database"
)

// SettlementResult 结算结果；Cached 表示命中了已有记录
type SettlementResult struct {
	Record  *model.SettlementRecord `json:"record"`
	Entries []model.LedgerEntry     `json:"entries"`
	Cached  bool                    `json:"cached"`
}

type settlementSnapshot struct {
	Participants []settlement.Participant `json:"participants"`
	Lines        []settlement.Line        `json:"lines"`
	Winners      []int64                  `json:"winners"`
	StakeType    model.StakeType          `json:"stake_type"`
	FeeBps       int64                    `json:"fee_bps"`
	Target       int                      `json:"target"`
}

type SettlementService struct {
	Deps
}

var (
	settlementService *SettlementService
	settlementOnce    sync.Once
)

func Settlement() *SettlementService {
	settlementOnce.Do(func() {
		settlementService = NewSettlementService(DefaultDeps())
	})
	return settlementService
}

func NewSettlementService(d Deps) *SettlementService {
	return &SettlementService{Deps: d}
}

// Settle 对已终结的挑战执行一次性结算。重复调用且输入不变时返回首次结果；
// 输入变化时挂起该挑战并通知人工处理，已有记录永不覆盖
func (s *SettlementService) Settle(ctx context.Context, challengeID int64) (*SettlementResult, error) {
	ch, err := s.loadChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !ch.Status.Terminal() {
		return nil, errors.ChallengeNotTerminal
	}
	if ch.SettlementHalted {
		return nil, errors.SettlementHalted
	}

	in, err := s.buildInput(ctx, ch)
	if err != nil {
		return nil, err
	}
	hash := settlement.InputHash(in)

	var existing model.SettlementRecord
	err = s.db(ctx).Where("challenge_id = ?", ch.ID).Take(&existing).Error
	switch {
	case err == nil:
		if existing.InputHash == hash {
			return s.cachedResult(ctx, &existing)
		}
		return nil, s.halt(ctx, ch, existing.InputHash, hash)
	case !database.IsNotFound(err):
		return nil, fmt.Errorf("failed to query settlement record: %w", err)
	}

	plan, err := settlement.Compute(in)
	if err != nil {
		return nil, fmt.Errorf("failed to compute settlement for challenge %d: %w", ch.ID, err)
	}

	snapshot, err := json.Marshal(settlementSnapshot{
		Participants: in.Participants,
		Lines:        plan.Lines,
		Winners:      plan.Winners,
		StakeType:    in.StakeType,
		FeeBps:       in.FeeBps,
		Target:       in.Target,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settlement snapshot: %w", err)
	}

	recordID, err := s.NextID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate settlement id: %w", err)
	}
	now := s.now().UTC()
	record := &model.SettlementRecord{
		BaseModel:   model.BaseModel{ID: recordID, CreatedAt: now, UpdatedAt: now},
		Outcome:     ch.Status,
		InputHash:   hash,
		Snapshot:    datatypes.JSON(snapshot),
		ChallengeID: ch.ID,
		PoolCents:   plan.PoolCents,
		FeeCents:    plan.FeeCents,
		WinnerCount: len(plan.Winners),
	}

	entries, err := s.entriesFor(record, ch, plan.Lines, now)
	if err != nil {
		return nil, err
	}

	err = s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return errors.SettlementConflict
			}
			return fmt.Errorf("failed to create settlement record: %w", err)
		}
		if err := s.appendEntries(tx, entries); err != nil {
			return err
		}

		if err := s.writeEvent(tx, model.EventChallengeSettled, ch.ID, model.ChallengeSettledEvent{
			Outcome:      string(record.Outcome),
			ChallengeID:  ch.ID,
			SettlementID: record.ID,
			PoolCents:    record.PoolCents,
			FeeCents:     record.FeeCents,
			WinnerCount:  record.WinnerCount,
		}); err != nil {
			return err
		}

		sum, err := challengeBalance(tx, ch.ID)
		if err != nil {
			return err
		}
		if sum != 0 {
			return fmt.Errorf("%w: challenge %d off by %d cents", errors.LedgerNotBalanced, ch.ID, sum)
		}
		return nil
	})

	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindConflict:
			s.log().Info("Settlement lost race to concurrent run",
				zap.Int64("challenge_id", ch.ID),
			)
		case errors.KindIntegrity:
			s.log().Error("Settlement aborted on unbalanced ledger",
				zap.Int64("challenge_id", ch.ID),
				zap.Error(err),
			)
			if haltErr := s.halt(ctx, ch, "", hash); errors.KindOf(haltErr) != errors.KindIntegrity {
				return nil, haltErr
			}
		default:
			s.log().Error("Failed to write settlement",
				zap.Int64("challenge_id", ch.ID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.Metrics.RecordSettlement(ctx, string(record.Outcome), string(ch.StakeType), record.PoolCents)
	s.log().Info("Challenge settled",
		zap.Int64("challenge_id", ch.ID),
		zap.Int64("settlement_id", record.ID),
		zap.String("outcome", string(record.Outcome)),
		zap.String("stake_type", string(ch.StakeType)),
		zap.Int64("pool_cents", record.PoolCents),
		zap.Int64("fee_cents", record.FeeCents),
		zap.Int("winners", record.WinnerCount),
		zap.Int("entries", len(entries)),
	)
	return &SettlementResult{Record: record, Entries: entries}, nil
}

func (s *SettlementService) loadChallenge(ctx context.Context, challengeID int64) (*model.Challenge, error) {
	var ch model.Challenge
	if err := s.db(ctx).Where("id = ?", challengeID).Take(&ch).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.ChallengeNotFound
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	return &ch, nil
}

// buildInput 已付押金的参与者及其截至 EndedAt 的完成数
func (s *SettlementService) buildInput(ctx context.Context, ch *model.Challenge) (settlement.Input, error) {
	var participants []model.ChallengeParticipant
	if err := s.db(ctx).
		Where("challenge_id = ? AND stake_paid = ?", ch.ID, true).
		Find(&participants).Error; err != nil {
		return settlement.Input{}, fmt.Errorf("failed to load participants: %w", err)
	}

	in := settlement.Input{
		Outcome:           ch.Status,
		StakeType:         ch.StakeType,
		Currency:          ch.StakeCurrency,
		ChallengeID:       ch.ID,
		FeeBps:            s.Policy.FeeBps,
		PlatformAccountID: s.Policy.PlatformAccountID,
		CharityAccountID:  s.Policy.CharityAccountID,
		Target:            ch.TargetCompletions,
		Participants:      make([]settlement.Participant, 0, len(participants)),
	}

	var counts map[int64]int
	if ch.Status != model.ChallengeStatusCancelled {
		var err error
		if counts, err = s.completions(s.db(ctx), ch, participants); err != nil {
			return settlement.Input{}, err
		}
	}

	for _, p := range participants {
		in.Participants = append(in.Participants, settlement.Participant{
			JoinedAt:    p.JoinedAt,
			UserID:      p.UserID,
			StakeCents:  ch.StakeAmountCents,
			Completions: counts[p.UserID],
		})
	}
	return in, nil
}

// entriesFor 把方案中的资金流转为出池条目；手续费直接完成，其余等待打款
func (s *SettlementService) entriesFor(record *model.SettlementRecord, ch *model.Challenge, lines []settlement.Line, now time.Time) ([]model.LedgerEntry, error) {
	entries := make([]model.LedgerEntry, 0, len(lines))
	for _, line := range lines {
		id, err := s.NextID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ledger id: %w", err)
		}
		entry := model.LedgerEntry{
			BaseModel:          model.BaseModel{ID: id},
			SettlementID:       &record.ID,
			Type:               line.Type,
			Currency:           ch.StakeCurrency,
			Status:             model.LedgerPending,
			IdempotencyKey:     fmt.Sprintf("settlement:%d:%d", record.ID, id),
			AmountCents:        -line.Amount,
			UserID:             line.UserID,
			RelatedChallengeID: ch.ID,
		}
		if !line.Type.PaysOut() {
			entry.Status = model.LedgerCompleted
			entry.CompletedAt = &now
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *SettlementService) cachedResult(ctx context.Context, record *model.SettlementRecord) (*SettlementResult, error) {
	var entries []model.LedgerEntry
	if err := s.db(ctx).Where("settlement_id = ?", record.ID).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to load settlement entries: %w", err)
	}
	s.log().Debug("Settlement already recorded",
		zap.Int64("challenge_id", record.ChallengeID),
		zap.Int64("settlement_id", record.ID),
	)
	return &SettlementResult{Record: record, Entries: entries, Cached: true}, nil
}

// halt 挂起挑战的自动结算，写入告警与一致性事件，返回 IntegrityError
func (s *SettlementService) halt(ctx context.Context, ch *model.Challenge, storedHash, computedHash string) error {
	reason := "settlement input hash mismatch"
	mismatch := errors.SettlementHashMismatch
	if storedHash == "" {
		reason = "ledger not balanced after settlement"
		mismatch = errors.LedgerNotBalanced
	}

	detail := fmt.Sprintf("%s: stored=%s computed=%s", reason, storedHash, computedHash)
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Challenge{}).Where("id = ?", ch.ID).Updates(map[string]interface{}{
			"settlement_halted": true,
			"halt_reason":       reason,
		}).Error; err != nil {
			return fmt.Errorf("failed to halt challenge: %w", err)
		}

		id, err := s.NextID()
		if err != nil {
			return fmt.Errorf("failed to generate alert id: %w", err)
		}
		alert := &model.OperatorAlert{
			BaseModel:   model.BaseModel{ID: id},
			Kind:        model.AlertSettlementIntegrity,
			Detail:      detail,
			ChallengeID: ch.ID,
		}
		if err := tx.Create(alert).Error; err != nil {
			return fmt.Errorf("failed to create operator alert: %w", err)
		}

		return s.writeEvent(tx, model.EventSettlementIntegrity, ch.ID, model.SettlementIntegrityEvent{
			StoredHash:   storedHash,
			ComputedHash: computedHash,
			ChallengeID:  ch.ID,
			AlertID:      alert.ID,
		})
	})
	if err != nil {
		s.log().Error("Failed to halt settlement",
			zap.Int64("challenge_id", ch.ID),
			zap.Error(err),
		)
		return err
	}

	s.Metrics.RecordIntegrityFailure(ctx, reason)
	s.log().Error("Settlement halted for operator review",
		zap.Int64("challenge_id", ch.ID),
		zap.String("reason", reason),
		zap.String("stored_hash", storedHash),
		zap.String("computed_hash", computedHash),
	)
	return fmt.Errorf("%w: challenge %d", mismatch, ch.ID)
}

// ReleaseHold 人工处理后解除挂起并关闭该挑战的未处理告警
func (s *SettlementService) ReleaseHold(ctx context.Context, challengeID, operatorID int64) error {
	now := s.now().UTC()
	err := s.db(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Challenge{}).
			Where("id = ? AND settlement_halted = ?", challengeID, true).
			Updates(map[string]interface{}{
				"settlement_halted": false,
				"halt_reason":       "",
			})
		if res.Error != nil {
			return fmt.Errorf("failed to release hold: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errors.AlertNotFound
		}
		return tx.Model(&model.OperatorAlert{}).
			Where("challenge_id = ? AND kind = ? AND resolved_at IS NULL", challengeID, model.AlertSettlementIntegrity).
			Updates(map[string]interface{}{
				"resolved_at": now,
				"resolved_by": operatorID,
			}).Error
	})
	if err != nil {
		return err
	}

	s.log().Warn("Settlement hold released",
		zap.Int64("challenge_id", challengeID),
		zap.Int64("operator_id", operatorID),
	)
	return nil
}

// ResolveAlert 人工处理完成后关闭一条告警，已关闭的重复调用无副作用
func (s *SettlementService) ResolveAlert(ctx context.Context, alertID, operatorID int64) (*model.OperatorAlert, error) {
	var alert model.OperatorAlert
	if err := s.db(ctx).Where("id = ?", alertID).Take(&alert).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, errors.AlertNotFound
		}
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	if alert.ResolvedAt != nil {
		return &alert, nil
	}

	now := s.now().UTC()
	res := s.db(ctx).Model(&model.OperatorAlert{}).
		Where("id = ? AND resolved_at IS NULL", alertID).
		Updates(map[string]interface{}{
			"resolved_at": now,
			"resolved_by": operatorID,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to resolve alert: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		alert.ResolvedAt = &now
		alert.ResolvedBy = operatorID
		s.log().Info("Operator alert resolved",
			zap.Int64("alert_id", alertID),
			zap.String("kind", alert.Kind),
			zap.Int64("operator_id", operatorID),
		)
	}
	return &alert, nil
}

// ListAlerts 人工处理队列，默认只返回未处理的
func (s *SettlementService) ListAlerts(ctx context.Context, includeResolved bool) ([]model.OperatorAlert, error) {
	tx := s.db(ctx)
	if !includeResolved {
		tx = tx.Where("resolved_at IS NULL")
	}
	var alerts []model.OperatorAlert
	if err := tx.Order("created_at DESC").Limit(maxLedgerPage).Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// Unsettled 已终结但尚未结算且未被挂起的挑战，供调度补偿
func (s *SettlementService) Unsettled(ctx context.Context, limit int) ([]int64, error) {
	var ids []int64
	err := s.db(ctx).Model(&model.Challenge{}).
		Where("status IN ? AND settlement_halted = ?", []model.ChallengeStatus{
			model.ChallengeStatusCompleted, model.ChallengeStatusExpired, model.ChallengeStatusCancelled,
		}, false).
		Where("id NOT IN (?)", s.db(ctx).Model(&model.SettlementRecord{}).Select("challenge_id")).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled challenges: %w", err)
	}
	return ids, nil
}
