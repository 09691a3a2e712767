package model

import "time"

// ChallengeType 挑战类型
type ChallengeType string

const (
	ChallengeTypeSolo   ChallengeType = "solo"
	ChallengeType1v1    ChallengeType = "1v1"
	ChallengeTypeGroup  ChallengeType = "group"
	ChallengeTypePublic ChallengeType = "public"
)

// MinParticipants 开始时已付押金人数的下限
func (t ChallengeType) MinParticipants() int {
	if t == ChallengeTypeSolo {
		return 1
	}
	return 2
}

// MaxParticipants 0 表示不限
func (t ChallengeType) MaxParticipants() int {
	switch t {
	case ChallengeTypeSolo:
		return 1
	case ChallengeType1v1:
		return 2
	default:
		return 0
	}
}

func (t ChallengeType) Valid() bool {
	switch t {
	case ChallengeTypeSolo, ChallengeType1v1, ChallengeTypeGroup, ChallengeTypePublic:
		return true
	}
	return false
}

// ChallengeStatus 挑战状态
type ChallengeStatus string

const (
	ChallengeStatusPending   ChallengeStatus = "pending"
	ChallengeStatusActive    ChallengeStatus = "active"
	ChallengeStatusCompleted ChallengeStatus = "completed"
	ChallengeStatusExpired   ChallengeStatus = "expired"
	ChallengeStatusCancelled ChallengeStatus = "cancelled"
)

// Terminal 终态之后只允许结算
func (s ChallengeStatus) Terminal() bool {
	return s == ChallengeStatusCompleted || s == ChallengeStatusExpired || s == ChallengeStatusCancelled
}

// StakeType 押金分配方式
type StakeType string

const (
	StakeWinnerTakesAll StakeType = "winner_takes_all"
	StakeSplitWinners   StakeType = "split_winners"
	StakeCharity        StakeType = "charity"
)

func (t StakeType) Valid() bool {
	switch t {
	case StakeWinnerTakesAll, StakeSplitWinners, StakeCharity:
		return true
	}
	return false
}

// Challenge 挑战；押金条款与挑战一对一，内嵌在同一行
type Challenge struct {
	BaseModel
	StartDate         time.Time       `gorm:"type:date;not null;index:idx_challenges_status_start,priority:2" json:"start_date"`
	EndDate           time.Time       `gorm:"type:date;not null;index" json:"end_date"` // 不含当天，StartDate + DurationDays
	ActivatedAt       *time.Time      `json:"activated_at,omitempty"`
	EndedAt           *time.Time      `json:"ended_at,omitempty"`
	Title             string          `gorm:"type:varchar(128);not null" json:"title"`
	Type              ChallengeType   `gorm:"type:varchar(16);not null" json:"type"`
	Status            ChallengeStatus `gorm:"type:varchar(16);not null;default:'pending';index:idx_challenges_status_start,priority:1" json:"status"`
	StakeCurrency     string          `gorm:"type:varchar(3);not null" json:"stake_currency"`
	StakeType         StakeType       `gorm:"type:varchar(32);not null" json:"stake_type"`
	HaltReason        string          `gorm:"type:varchar(256);not null;default:''" json:"halt_reason,omitempty"`
	CreatorID         int64           `gorm:"not null;index" json:"creator_id,string"`
	StakeAmountCents  int64           `gorm:"not null;default:0" json:"stake_amount_cents"`
	DurationDays      int             `gorm:"not null" json:"duration_days"`
	TargetCompletions int             `gorm:"not null" json:"target_completions"`
	SettlementHalted  bool            `gorm:"not null;default:false" json:"settlement_halted"`
}

// TableName 指定表名
func (Challenge) TableName() string {
	return "challenges"
}

// WindowEnd 挑战窗口 [StartDate, WindowEnd) 的右边界
func WindowEnd(start time.Time, durationDays int) time.Time {
	return start.AddDate(0, 0, durationDays)
}

// InWindow date 是否落在挑战窗口内，只比较日历日期
func (c *Challenge) InWindow(date time.Time) bool {
	d := civilDate(date)
	return !d.Before(civilDate(c.StartDate)) && d.Before(civilDate(c.EndDate))
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParticipantStatus 参与状态
type ParticipantStatus string

const (
	ParticipantJoined  ParticipantStatus = "joined"
	ParticipantDropped ParticipantStatus = "dropped" // 开始时仍未付押金
)

// ChallengeParticipant 参与者，每个用户在同一挑战中只有一行
type ChallengeParticipant struct {
	BaseModel
	JoinedAt        time.Time         `gorm:"not null" json:"joined_at"`
	StakePaidAt     *time.Time        `json:"stake_paid_at,omitempty"`
	Status          ParticipantStatus `gorm:"type:varchar(16);not null;default:'joined'" json:"status"`
	StakePaymentRef string            `gorm:"type:varchar(128);not null;default:''" json:"stake_payment_ref,omitempty"`
	ChallengeID     int64             `gorm:"not null;uniqueIndex:uk_challenge_participants_challenge_user,priority:1" json:"challenge_id,string"`
	UserID          int64             `gorm:"not null;uniqueIndex:uk_challenge_participants_challenge_user,priority:2" json:"user_id,string"`
	HabitID         int64             `gorm:"not null;index" json:"habit_id,string"`
	Completions     int               `gorm:"not null;default:0" json:"completions"`
	StakePaid       bool              `gorm:"not null;default:false" json:"stake_paid"`
}

// TableName 指定表名
func (ChallengeParticipant) TableName() string {
	return "challenge_participants"
}

// ChallengeProgress 进度计数的去重表，同一条打卡只计一次
type ChallengeProgress struct {
	BaseModel
	ChallengeID  int64 `gorm:"not null;uniqueIndex:uk_challenge_progress_challenge_log,priority:1" json:"challenge_id,string"`
	CheckInLogID int64 `gorm:"not null;uniqueIndex:uk_challenge_progress_challenge_log,priority:2" json:"check_in_log_id,string"`
	UserID       int64 `gorm:"not null" json:"user_id,string"`
}

// TableName 指定表名
func (ChallengeProgress) TableName() string {
	return "challenge_progress"
}
