package model

import (
	"strings"
	"time"
)

// Frequency 习惯频率
type Frequency string

const (
	FrequencyDaily    Frequency = "daily"    // 每天
	FrequencyWeekdays Frequency = "weekdays" // 工作日
	FrequencyCustom   Frequency = "custom"   // 每周 N 次
)

// VerificationMode 打卡核验方式
type VerificationMode string

const (
	VerificationSelf   VerificationMode = "self"   // 自证，提交即生效
	VerificationSocial VerificationMode = "social" // 需要伙伴确认
)

// Habit 习惯
type Habit struct {
	BaseModel
	LastCheckInDate    *time.Time       `gorm:"type:date" json:"last_check_in_date,omitempty"`
	Name               string           `gorm:"type:varchar(128);not null" json:"name"`
	Frequency          Frequency        `gorm:"type:varchar(16);not null" json:"frequency"`
	ProofTypesAllowed  string           `gorm:"type:varchar(64);not null;default:''" json:"proof_types_allowed"` // 逗号分隔，如 "photo,note"
	VerificationMode   VerificationMode `gorm:"type:varchar(16);not null;default:'self'" json:"verification_mode"`
	UserID             int64            `gorm:"not null;index:idx_habits_user" json:"user_id,string"`
	PerWeekTarget      int              `gorm:"not null;default:0" json:"per_week_target"`
	VerificationQuorum int              `gorm:"not null;default:0" json:"verification_quorum"` // 0 使用全局默认
	CurrentStreak      int              `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak      int              `gorm:"not null;default:0" json:"longest_streak"`
	RequiresProof      bool             `gorm:"not null;default:false" json:"requires_proof"`
	Archived           bool             `gorm:"not null;default:false" json:"archived"`
}

// TableName 指定表名
func (Habit) TableName() string {
	return "habits"
}

// AllowsProof 未配置允许类型时接受任何证明
func (h *Habit) AllowsProof(t ProofType) bool {
	if strings.TrimSpace(h.ProofTypesAllowed) == "" {
		return true
	}
	for _, allowed := range strings.Split(h.ProofTypesAllowed, ",") {
		if ProofType(strings.TrimSpace(allowed)) == t {
			return true
		}
	}
	return false
}
