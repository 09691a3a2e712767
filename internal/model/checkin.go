package model

import "time"

// CheckInStatus 打卡记录状态
type CheckInStatus string

const (
	CheckInStatusDone     CheckInStatus = "done"     // 正常完成
	CheckInStatusMissed   CheckInStatus = "missed"   // 缺卡
	CheckInStatusSkipped  CheckInStatus = "skipped"  // 计划内跳过
	CheckInStatusFrozen   CheckInStatus = "frozen"   // 冻结卡保住的一天
	CheckInStatusRestored CheckInStatus = "restored" // 付费恢复
)

// VerificationStatus 核验状态
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationDisputed VerificationStatus = "disputed"
)

// CheckInLog 打卡记录，每个习惯每天至多一条
type CheckInLog struct {
	BaseModel
	CheckInDate        time.Time          `gorm:"type:date;not null;uniqueIndex:uk_check_in_logs_habit_date,priority:2;index:idx_check_in_logs_user_date,priority:2" json:"check_in_date"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`
	DisputedAt         *time.Time         `json:"disputed_at,omitempty"`
	Status             CheckInStatus      `gorm:"type:varchar(16);not null" json:"status"`
	ProofType          ProofType          `gorm:"type:varchar(16);not null;default:'none'" json:"proof_type"`
	ProofPayloadRef    string             `gorm:"type:varchar(512);not null;default:''" json:"proof_payload_ref,omitempty"`
	ProofNote          string             `gorm:"type:text;not null;default:''" json:"proof_note,omitempty"`
	VerificationStatus VerificationStatus `gorm:"type:varchar(16);not null;default:'approved'" json:"verification_status"`
	DisputeReason      string             `gorm:"type:varchar(512);not null;default:''" json:"dispute_reason,omitempty"`
	HabitID            int64              `gorm:"not null;uniqueIndex:uk_check_in_logs_habit_date,priority:1" json:"habit_id,string"`
	UserID             int64              `gorm:"not null;index:idx_check_in_logs_user_date,priority:1" json:"user_id,string"`
	StreakCountAtLog   int                `gorm:"not null;default:0" json:"streak_count_at_log"`
}

// TableName 指定表名
func (CheckInLog) TableName() string {
	return "check_in_logs"
}

// CheckInVerification 伙伴确认，每个核验人每条记录一次
type CheckInVerification struct {
	BaseModel
	CheckInLogID int64 `gorm:"not null;uniqueIndex:uk_check_in_verifications_log_verifier,priority:1" json:"check_in_log_id,string"`
	VerifierID   int64 `gorm:"not null;uniqueIndex:uk_check_in_verifications_log_verifier,priority:2" json:"verifier_id,string"`
}

// TableName 指定表名
func (CheckInVerification) TableName() string {
	return "check_in_verifications"
}
