package types

// IntervalState represents the lifecycle state of a PlanInterval.
// Transitions are monotonic: pristine -> in_use -> expired.
type IntervalState string

const (
	IntervalPristine IntervalState = "pristine"
	IntervalInUse    IntervalState = "in_use"
	IntervalExpired  IntervalState = "expired"
)

// LogAction identifies the kind of plan event recorded in the audit ledger.
// The set is closed; decoding an unknown tag is a validation error before it
// ever reaches persistence.
type LogAction string

const (
	ActionSetPlan         LogAction = "set-plan"
	ActionAddInterval     LogAction = "add-interval"
	ActionStartInterval   LogAction = "start-interval"
	ActionExpiredInterval LogAction = "expired-interval"
)

// ExpiryResult describes the outcome of an expiry check on an interval.
type ExpiryResult string

const (
	// ExpiryStillValid means the interval is in use and has time remaining.
	ExpiryStillValid ExpiryResult = "still_valid"
	// ExpiryJustExpired means this check transitioned the interval to expired.
	ExpiryJustExpired ExpiryResult = "just_expired"
	// ExpiryAlreadyExpired means the interval had expired earlier; the check
	// is an idempotent no-op.
	ExpiryAlreadyExpired ExpiryResult = "already_expired"
)

// QuotaOp identifies a block-server accounting operation.
type QuotaOp string

const (
	// QuotaStore accounts an upload (or, with a negative size, a deletion)
	// against the profile and prefix storage counters.
	QuotaStore QuotaOp = "store"
	// QuotaGet accounts a download against the traffic counters.
	QuotaGet QuotaOp = "get"
)

// ParseQuotaOp decodes a wire-level action tag into a QuotaOp.
// Unknown tags are rejected so they can never reach the dispatcher.
func ParseQuotaOp(s string) (QuotaOp, error) {
	switch QuotaOp(s) {
	case QuotaStore:
		return QuotaStore, nil
	case QuotaGet:
		return QuotaGet, nil
	default:
		return "", NewAppErrorWithDetails(
			ErrCodeValidationUnknownAction,
			"unknown quota action",
			nil,
			map[string]any{"action": s},
		)
	}
}
