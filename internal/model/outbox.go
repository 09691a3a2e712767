package model

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxEvent 与业务写入同事务落库的事件，由 relay 投递到 MQ
type OutboxEvent struct {
	BaseModel
	PublishedAt *time.Time     `gorm:"index:idx_outbox_events_unpublished" json:"published_at,omitempty"`
	MessageID   string         `gorm:"type:varchar(64);not null;uniqueIndex:uk_outbox_events_message" json:"message_id"`
	EventType   string         `gorm:"type:varchar(64);not null" json:"event_type"`
	LastError   string         `gorm:"type:varchar(512);not null;default:''" json:"last_error,omitempty"`
	Payload     datatypes.JSON `gorm:"not null" json:"payload"`
	AggregateID int64          `gorm:"not null" json:"aggregate_id,string"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
}

// TableName 指定表名
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// OperatorAlert 需要人工处理的告警
type OperatorAlert struct {
	BaseModel
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Kind          string     `gorm:"type:varchar(64);not null" json:"kind"`
	Detail        string     `gorm:"type:text;not null" json:"detail"`
	ChallengeID   int64      `gorm:"not null;index" json:"challenge_id,string"`
	LedgerEntryID int64      `gorm:"not null;default:0" json:"ledger_entry_id,string,omitempty"`
	ResolvedBy    int64      `gorm:"not null;default:0" json:"resolved_by,string"`
}

// TableName 指定表名
func (OperatorAlert) TableName() string {
	return "operator_alerts"
}

const (
	// AlertSettlementIntegrity 结算输入与已落库记录不一致
	AlertSettlementIntegrity = "settlement_integrity"
	// AlertPayoutRejected 打款通道拒绝，欠款仍记在账本上等待人工处理
	AlertPayoutRejected = "payout_rejected"
)
