package model

// All 需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&Habit{},
		&CheckInLog{},
		&CheckInVerification{},
		&FreezeTokenBalance{},
		&StreakRestoration{},
		&Challenge{},
		&ChallengeParticipant{},
		&ChallengeProgress{},
		&LedgerEntry{},
		&SettlementRecord{},
		&OutboxEvent{},
		&OperatorAlert{},
	}
}
