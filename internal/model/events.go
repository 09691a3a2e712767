package model

import (
	"encoding/json"
	"time"
)

// 事件类型，同时作为 events.topic 的 routing key
const (
	EventCheckInAccepted     = "check_in_accepted"
	EventStreakMilestone     = "streak_milestone"
	EventChallengeSettled    = "challenge_settled"
	EventSettlementIntegrity = "settlement_integrity"
)

// EventEnvelope MQ 消息体，MessageID 用于消费端幂等
type EventEnvelope struct {
	OccurredAt  time.Time       `json:"occurred_at"`
	MessageID   string          `json:"message_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	AggregateID int64           `json:"aggregate_id,string"`
}

// CheckInAcceptedEvent 打卡被接受，驱动挑战进度
type CheckInAcceptedEvent struct {
	CreatedAt    time.Time `json:"created_at"`
	CheckInDate  string    `json:"check_in_date"`
	Status       string    `json:"status"`
	CheckInLogID int64     `json:"check_in_log_id,string"`
	HabitID      int64     `json:"habit_id,string"`
	UserID       int64     `json:"user_id,string"`
	Streak       int       `json:"streak"`
}

// StreakMilestoneEvent 连胜跨过里程碑并发放冻结卡
type StreakMilestoneEvent struct {
	HabitID       int64 `json:"habit_id,string"`
	UserID        int64 `json:"user_id,string"`
	Streak        int   `json:"streak"`
	FreezeBalance int   `json:"freeze_balance"`
}

// ChallengeSettledEvent 挑战结算完成
type ChallengeSettledEvent struct {
	Outcome      string `json:"outcome"`
	ChallengeID  int64  `json:"challenge_id,string"`
	SettlementID int64  `json:"settlement_id,string"`
	PoolCents    int64  `json:"pool_cents"`
	FeeCents     int64  `json:"fee_cents"`
	WinnerCount  int    `json:"winner_count"`
}

// SettlementIntegrityEvent 结算一致性告警
type SettlementIntegrityEvent struct {
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
	ChallengeID  int64  `json:"challenge_id,string"`
	AlertID      int64  `json:"alert_id,string"`
}
