package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"HabitPact/internal/model"
	"HabitPact/pkg/errors"
)

const (
	defaultLedgerPage = 50
	maxLedgerPage     = 200
)

// LedgerQuery 账本导出查询，Cursor 为上一页最后一条的 ID
type LedgerQuery struct {
	Type   model.LedgerEntryType
	Cursor int64
	Limit  int
}

// LedgerPage 按 ID 倒序的一页
type LedgerPage struct {
	Entries    []model.LedgerEntry `json:"entries"`
	NextCursor int64               `json:"next_cursor,string,omitempty"`
}

type LedgerService struct {
	Deps
}

var (
	ledgerService *LedgerService
	ledgerOnce    sync.Once
)

func Ledger() *LedgerService {
	ledgerOnce.Do(func() {
		ledgerService = NewLedgerService(DefaultDeps())
	})
	return ledgerService
}

func NewLedgerService(d Deps) *LedgerService {
	return &LedgerService{Deps: d}
}

// ListByUser 只读导出，配置了副本时走副本
func (s *LedgerService) ListByUser(ctx context.Context, userID int64, q LedgerQuery) (*LedgerPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLedgerPage
	}
	if limit > maxLedgerPage {
		limit = maxLedgerPage
	}

	tx := s.db(ctx).Clauses(dbresolver.Read).Where("user_id = ?", userID)
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	if q.Cursor > 0 {
		tx = tx.Where("id < ?", q.Cursor)
	}

	var entries []model.LedgerEntry
	if err := tx.Order("id DESC").Limit(limit + 1).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	page := &LedgerPage{Entries: entries}
	if len(entries) > limit {
		page.Entries = entries[:limit]
		page.NextCursor = entries[limit-1].ID
	}
	return page, nil
}

// ChallengeBalance 挑战相关条目之和，结算完成后应为 0
func (s *LedgerService) ChallengeBalance(ctx context.Context, challengeID int64) (int64, error) {
	return challengeBalance(s.db(ctx), challengeID)
}

// VerifyChallenge 已结算挑战的账本必须平衡
func (s *LedgerService) VerifyChallenge(ctx context.Context, challengeID int64) error {
	var settled int64
	if err := s.db(ctx).Model(&model.SettlementRecord{}).Where("challenge_id = ?", challengeID).Count(&settled).Error; err != nil {
		return fmt.Errorf("failed to query settlement: %w", err)
	}
	if settled == 0 {
		return nil
	}

	sum, err := s.ChallengeBalance(ctx, challengeID)
	if err != nil {
		return err
	}
	if sum != 0 {
		s.log().Error("Ledger not balanced for settled challenge",
			zap.Int64("challenge_id", challengeID),
			zap.Int64("balance_cents", sum),
		)
		return fmt.Errorf("%w: challenge %d off by %d cents", errors.LedgerNotBalanced, challengeID, sum)
	}
	return nil
}

// Pending 出池条目的运营视图：pending 为等待通道确认，failed 为被通道拒绝、仍欠付的条目。
// 最早的在前
func (s *LedgerService) Pending(ctx context.Context, status model.LedgerStatus, limit int) ([]model.LedgerEntry, error) {
	switch status {
	case "":
		status = model.LedgerPending
	case model.LedgerPending, model.LedgerFailed:
	default:
		return nil, fmt.Errorf("%w: unsupported status %q", errors.InvalidRequest, status)
	}
	if limit <= 0 || limit > maxLedgerPage {
		limit = maxLedgerPage
	}
	var entries []model.LedgerEntry
	err := s.db(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entries: %w", status, err)
	}
	return entries, nil
}

// appendEntries 账本只追加，调用方负责提供事务
func (d Deps) appendEntries(tx *gorm.DB, entries []model.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	now := d.now().UTC()
	for i := range entries {
		if entries[i].ID == 0 {
			id, err := d.NextID()
			if err != nil {
				return fmt.Errorf("failed to generate ledger id: %w", err)
			}
			entries[i].ID = id
		}
		entries[i].CreatedAt = now
		entries[i].UpdatedAt = now
	}
	if err := tx.Create(&entries).Error; err != nil {
		return fmt.Errorf("failed to append ledger entries: %w", err)
	}
	return nil
}

func challengeBalance(tx *gorm.DB, challengeID int64) (int64, error) {
	var sum int64
	err := tx.Model(&model.LedgerEntry{}).
		Where("related_challenge_id = ?", challengeID).
		Select("COALESCE(SUM(amount_cents), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return sum, nil
}
