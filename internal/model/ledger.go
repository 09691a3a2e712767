package model

import "time"

// LedgerEntryType 账本条目类型
type LedgerEntryType string

const (
	LedgerStake  LedgerEntryType = "stake"  // 押金入池
	LedgerWin    LedgerEntryType = "win"    // 超出本金的奖金
	LedgerPayout LedgerEntryType = "payout" // 整笔奖池分配
	LedgerRefund LedgerEntryType = "refund" // 退还本金
	LedgerFee    LedgerEntryType = "fee"    // 平台手续费
)

// PaysOut 需要调用支付通道的类型
func (t LedgerEntryType) PaysOut() bool {
	return t == LedgerWin || t == LedgerPayout || t == LedgerRefund
}

// LedgerStatus 条目状态
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerCompleted LedgerStatus = "completed"
	LedgerFailed    LedgerStatus = "failed"
)

// LedgerEntry 只追加的账本条目。金额以奖池为视角带符号：入池为正，出池为负，
// 同一挑战所有条目之和为 0
type LedgerEntry struct {
	BaseModel
	SettlementID       *int64          `gorm:"index" json:"settlement_id,omitempty,string"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	Type               LedgerEntryType `gorm:"type:varchar(16);not null;index:idx_ledger_entries_status_type,priority:2" json:"type"`
	Currency           string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status             LedgerStatus    `gorm:"type:varchar(16);not null;index:idx_ledger_entries_status_type,priority:1" json:"status"`
	IdempotencyKey     string          `gorm:"type:varchar(128);not null;uniqueIndex:uk_ledger_entries_idempotency" json:"idempotency_key"`
	ExternalTxnID      string          `gorm:"type:varchar(128);not null;default:''" json:"external_txn_id,omitempty"`
	LastError          string          `gorm:"type:varchar(512);not null;default:''" json:"last_error,omitempty"`
	AmountCents        int64           `gorm:"not null" json:"amount_cents"`
	UserID             int64           `gorm:"not null;index:idx_ledger_entries_user_created,priority:1" json:"user_id,string"`
	RelatedChallengeID int64           `gorm:"not null;index" json:"related_challenge_id,string"`
	Attempts           int             `gorm:"not null;default:0" json:"attempts"`
}

// TableName 指定表名
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

// PayoutKey 支付通道的幂等键，重试时保持不变
func (e *LedgerEntry) PayoutKey() string {
	return e.IdempotencyKey
}
