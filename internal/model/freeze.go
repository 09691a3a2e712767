package model

// FreezeTokenBalance 冻结卡余额，每个用户每个习惯一行
type FreezeTokenBalance struct {
	BaseModel
	UserID         int64 `gorm:"not null;uniqueIndex:uk_freeze_token_balances_user_habit,priority:1" json:"user_id,string"`
	HabitID        int64 `gorm:"not null;uniqueIndex:uk_freeze_token_balances_user_habit,priority:2" json:"habit_id,string"`
	Balance        int   `gorm:"not null;default:0" json:"balance"`
	LifetimeEarned int   `gorm:"not null;default:0" json:"lifetime_earned"`
	LifetimeUsed   int   `gorm:"not null;default:0" json:"lifetime_used"`
}

// TableName 指定表名
func (FreezeTokenBalance) TableName() string {
	return "freeze_token_balances"
}

// StreakRestoration 付费恢复连胜的审计记录，同一笔支付只生效一次
type StreakRestoration struct {
	BaseModel
	PaymentRef   string `gorm:"type:varchar(128);not null;uniqueIndex:uk_streak_restorations_payment" json:"payment_ref"`
	UserID       int64  `gorm:"not null;index" json:"user_id,string"`
	HabitID      int64  `gorm:"not null;index" json:"habit_id,string"`
	CheckInLogID int64  `gorm:"not null" json:"check_in_log_id,string"`
	FromValue    int    `gorm:"not null" json:"from_value"`
	ToValue      int    `gorm:"not null" json:"to_value"`
}

// TableName 指定表名
func (StreakRestoration) TableName() string {
	return "streak_restorations"
}
