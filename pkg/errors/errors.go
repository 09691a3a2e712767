package errors

import (
	stderrors "errors"
)

// Kind 错误大类，决定调用方的处理方式与 HTTP 状态码
type Kind string

const (
	KindValidation Kind = "validation" // 输入不合法，不可重试
	KindConflict   Kind = "conflict"   // 并发竞争失败或状态不允许，可重新读取后重试
	KindIntegrity  Kind = "integrity"  // 数据一致性被破坏，需要人工介入
	KindTransient  Kind = "transient"  // 下游暂不可用，可安全重试
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
)

func (d Definition) Error() string {
	return d.Message
}

// Is 按错误码比较，便于 errors.Is 穿透 fmt.Errorf 的包装
func (d Definition) Is(target error) bool {
	t, ok := target.(Definition)
	if !ok {
		return false
	}
	return d.Code == t.Code
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
	Kind    Kind
}

// 通用错误。
var (
	InvalidRequest     = Definition{Code: "INVALID_REQUEST", Message: "Invalid request", Kind: KindValidation}
	TooManyRequests    = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests", Kind: KindValidation}
	StorageUnavailable = Definition{Code: "STORAGE_UNAVAILABLE", Message: "Storage temporarily unavailable", Kind: KindTransient}
	InternalError      = Definition{Code: "INTERNAL_ERROR", Message: "Internal error", Kind: KindInternal}
)

// 习惯与打卡错误。
var (
	HabitNotFound        = Definition{Code: "HABIT_NOT_FOUND", Message: "Habit not found", Kind: KindNotFound}
	HabitNotOwned        = Definition{Code: "HABIT_NOT_OWNED", Message: "Habit does not belong to user", Kind: KindValidation}
	HabitArchived        = Definition{Code: "HABIT_ARCHIVED", Message: "Habit is archived", Kind: KindValidation}
	CheckInDateInFuture  = Definition{Code: "CHECK_IN_DATE_IN_FUTURE", Message: "Check-in date is in the future", Kind: KindValidation}
	CheckInBackfillLimit = Definition{Code: "CHECK_IN_BACKFILL_TOO_OLD", Message: "Check-in date is too far in the past", Kind: KindValidation}
	MissingProof         = Definition{Code: "MISSING_PROOF", Message: "Proof is required for this habit", Kind: KindValidation}
	ProofTypeNotAllowed  = Definition{Code: "PROOF_TYPE_NOT_ALLOWED", Message: "Proof type not allowed for this habit", Kind: KindValidation}
	InvalidProof         = Definition{Code: "INVALID_PROOF", Message: "Proof payload is invalid", Kind: KindValidation}
	AlreadyCheckedIn     = Definition{Code: "ALREADY_CHECKED_IN", Message: "Already checked in for this date", Kind: KindConflict}
	CheckInNotFound      = Definition{Code: "CHECK_IN_NOT_FOUND", Message: "Check-in not found", Kind: KindNotFound}
	CheckInNotPending    = Definition{Code: "CHECK_IN_NOT_PENDING", Message: "Check-in is not awaiting verification", Kind: KindConflict}
	AlreadyVerified      = Definition{Code: "ALREADY_VERIFIED", Message: "Verifier already approved this check-in", Kind: KindConflict}
	VerifierNotAllowed   = Definition{Code: "VERIFIER_NOT_INDEPENDENT", Message: "Owner cannot verify own check-in", Kind: KindValidation}
)

// 冻结卡与连胜恢复错误。
var (
	StreakRestoreInvalid = Definition{Code: "STREAK_RESTORE_INVALID", Message: "Streak restoration is not allowed", Kind: KindValidation}
	PaymentNotConfirmed  = Definition{Code: "PAYMENT_NOT_CONFIRMED", Message: "Payment not confirmed", Kind: KindValidation}
	BillingUnavailable   = Definition{Code: "BILLING_UNAVAILABLE", Message: "Billing service unavailable", Kind: KindTransient}
)

// 挑战错误。
var (
	ChallengeNotFound           = Definition{Code: "CHALLENGE_NOT_FOUND", Message: "Challenge not found", Kind: KindNotFound}
	ChallengeInvalid            = Definition{Code: "CHALLENGE_INVALID", Message: "Challenge definition invalid", Kind: KindValidation}
	ChallengeNotJoinable        = Definition{Code: "CHALLENGE_NOT_JOINABLE", Message: "Challenge can no longer be joined", Kind: KindValidation}
	ChallengeFull               = Definition{Code: "CHALLENGE_FULL", Message: "Challenge is full", Kind: KindValidation}
	AlreadyJoined               = Definition{Code: "CHALLENGE_ALREADY_JOINED", Message: "User already joined this challenge", Kind: KindConflict}
	NotParticipant              = Definition{Code: "CHALLENGE_NOT_PARTICIPANT", Message: "User is not a participant", Kind: KindValidation}
	StakeImmutable              = Definition{Code: "STAKE_IMMUTABLE", Message: "Stake can no longer be changed", Kind: KindValidation}
	ChallengeNotCancellable     = Definition{Code: "CHALLENGE_NOT_CANCELLABLE", Message: "Challenge cannot be cancelled", Kind: KindConflict}
	ChallengeTransitionConflict = Definition{Code: "CHALLENGE_TRANSITION_CONFLICT", Message: "Challenge state changed concurrently", Kind: KindConflict}
	ChallengeNotTerminal        = Definition{Code: "CHALLENGE_NOT_TERMINAL", Message: "Challenge has not ended", Kind: KindConflict}
)

// 结算与账本错误。
var (
	SettlementConflict     = Definition{Code: "SETTLEMENT_CONFLICT", Message: "Settlement already in progress", Kind: KindConflict}
	SettlementHashMismatch = Definition{Code: "SETTLEMENT_HASH_MISMATCH", Message: "Settlement inputs changed after settlement", Kind: KindIntegrity}
	SettlementHalted       = Definition{Code: "SETTLEMENT_HALTED", Message: "Settlement halted pending operator review", Kind: KindIntegrity}
	LedgerNotBalanced      = Definition{Code: "LEDGER_NOT_BALANCED", Message: "Ledger entries do not balance", Kind: KindIntegrity}
	PayoutUnavailable      = Definition{Code: "PAYOUT_UNAVAILABLE", Message: "Payout processor unavailable", Kind: KindTransient}
	PayoutRejected         = Definition{Code: "PAYOUT_REJECTED", Message: "Payout rejected by processor", Kind: KindValidation}
	AlertNotFound          = Definition{Code: "ALERT_NOT_FOUND", Message: "Operator alert not found", Kind: KindNotFound}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{}

func init() {
	for _, def := range []Definition{
		InvalidRequest, TooManyRequests, StorageUnavailable, InternalError,
		HabitNotFound, HabitNotOwned, HabitArchived, CheckInDateInFuture, CheckInBackfillLimit,
		MissingProof, ProofTypeNotAllowed, InvalidProof, AlreadyCheckedIn, CheckInNotFound,
		CheckInNotPending, AlreadyVerified, VerifierNotAllowed,
		StreakRestoreInvalid, PaymentNotConfirmed, BillingUnavailable,
		ChallengeNotFound, ChallengeInvalid, ChallengeNotJoinable, ChallengeFull, AlreadyJoined,
		NotParticipant, StakeImmutable, ChallengeNotCancellable, ChallengeTransitionConflict,
		ChallengeNotTerminal,
		SettlementConflict, SettlementHashMismatch, SettlementHalted, LedgerNotBalanced,
		PayoutUnavailable, PayoutRejected, AlertNotFound,
	} {
		Lookup[def.Code] = def
	}
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error", Kind: KindInternal}
}

// As 沿错误链查找第一个 Definition
func As(err error) (Definition, bool) {
	var def Definition
	if stderrors.As(err, &def) {
		return def, true
	}
	return Definition{}, false
}

// KindOf 返回错误链上的业务错误类型，非业务错误视为 internal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if def, ok := As(err); ok {
		return def.Kind
	}
	return KindInternal
}

// Is 透传标准库，避免调用方同时引入两个 errors 包
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// SkipMessageError 消费者遇到重复消息时返回，直接 ack 不重投
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "skip message: " + e.Reason
}

// IsSkip 判断错误链中是否包含 SkipMessageError
func IsSkip(err error) bool {
	var skip *SkipMessageError
	return stderrors.As(err, &skip)
}
