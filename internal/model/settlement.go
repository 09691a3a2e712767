package model

import (
	"gorm.io/datatypes"
)

// SettlementRecord 每个挑战至多一条结算记录
type SettlementRecord struct {
	BaseModel
	Outcome     ChallengeStatus `gorm:"type:varchar(16);not null" json:"outcome"`
	InputHash   string          `gorm:"type:char(64);not null" json:"input_hash"`
	Snapshot    datatypes.JSON  `json:"snapshot"`
	ChallengeID int64           `gorm:"not null;uniqueIndex:uk_settlement_records_challenge" json:"challenge_id,string"`
	PoolCents   int64           `gorm:"not null" json:"pool_cents"`
	FeeCents    int64           `gorm:"not null" json:"fee_cents"`
	WinnerCount int             `gorm:"not null" json:"winner_count"`
}

// TableName 指定表名
func (SettlementRecord) TableName() string {
	return "settlement_records"
}
