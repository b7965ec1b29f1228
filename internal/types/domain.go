package types

import (
	"time"

	"github.com/google/uuid"
)

// User is the owning identity of an account. One Profile exists per User;
// both rows are always created in the same transaction.
type User struct {
	ID            int64
	Username      string
	Email         string
	PasswordHash  string
	Token         string // opaque bearer token forwarded by the block server
	IsActive      bool
	EmailVerified bool
	CreatedAt     time.Time
}

// FreePlanID is the plan every profile falls back to when first created.
// A plan with this ID always exists; startup bootstraps it.
const FreePlanID = "free"

// Plan is a catalog entry defining a quota tier. Plans are identified by a
// stable slug (never reused) and are effectively immutable once referenced
// by history; deletion is rejected while any profile, interval, or log entry
// points at them.
type Plan struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	BlockQuota          int64  `json:"block_quota"`
	MonthlyTrafficQuota int64  `json:"monthly_traffic_quota"`
}

// Profile is the per-user aggregate holding confirmation and quota state.
//
// SubscribedPlanID is never empty; it is the fallback plan used when no
// interval is active or pending. CreatedOnBehalf profiles are permanently
// exempt from confirmation-deadline enforcement.
type Profile struct {
	UserID                 int64
	SubscribedPlanID       string
	CreatedOnBehalf        bool
	NeedsConfirmationAfter time.Time
	NextConfirmationMail   *time.Time
	UsedStorage            int64
	Downloads              int64
	PlusNotificationMail   bool
	ProNotificationMail    bool
	CreatedAt              time.Time
}

// PlanInterval is a prepaid, time-boxed grant of a plan to a profile.
//
// Invariants:
//   - StartedAt is nil iff State is pristine.
//   - At most one interval per profile is in_use at any time.
//   - Expiry is derived (now > StartedAt+Duration) and persisted lazily on
//     observation, never by a timer.
type PlanInterval struct {
	ID        int64
	ProfileID int64
	PlanID    string
	Duration  time.Duration
	State     IntervalState
	StartedAt *time.Time
}

// ExpiresAt returns the instant the interval stops being valid.
// Only meaningful for started intervals; the zero time is returned for
// pristine ones.
func (iv *PlanInterval) ExpiresAt() time.Time {
	if iv.StartedAt == nil {
		return time.Time{}
	}
	return iv.StartedAt.Add(iv.Duration)
}

// PlanLogEntry is one row of the append-only plan audit ledger.
// Entries are never updated or deleted after creation.
type PlanLogEntry struct {
	ID         int64
	ProfileID  int64
	PlanID     string
	IntervalID *int64
	Action     LogAction
	Timestamp  time.Time // server-assigned
	Origin     string    // description of the request's source
}

// Prefix is a storage namespace allocated to a user on the block server,
// with per-prefix usage counters.
type Prefix struct {
	ID        uuid.UUID
	UserID    int64
	Size      int64
	Downloads int64
	CreatedAt time.Time
}
