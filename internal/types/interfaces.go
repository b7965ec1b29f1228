package types

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time for testability. State-machine operations receive a
// Clock instead of calling time.Now so that expiry and cool-down logic is
// deterministic under test.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// UserStore provides data access for user identities.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByToken(ctx context.Context, token string) (*User, error)
	MarkEmailVerified(ctx context.Context, id int64) error
}

// PlanStore provides data access for the plan catalog.
type PlanStore interface {
	Create(ctx context.Context, p *Plan) error
	Get(ctx context.Context, id string) (*Plan, error)
	List(ctx context.Context) ([]*Plan, error)
	// Delete removes an unreferenced plan. Plans referenced by any profile,
	// interval, or log entry are protected; deleting them fails with
	// ErrCodeConflictPlanRef.
	Delete(ctx context.Context, id string) error
}

// ProfileStore provides data access for profiles.
type ProfileStore interface {
	Create(ctx context.Context, p *Profile) error
	GetByUserID(ctx context.Context, userID int64) (*Profile, error)
	GetByEmail(ctx context.Context, email string) (*Profile, error)
	SetSubscribedPlan(ctx context.Context, userID int64, planID string) error
	// AddUsage atomically adds the deltas to the profile's storage and
	// download counters.
	AddUsage(ctx context.Context, userID int64, storageDelta, downloadDelta int64) error
	// ReserveConfirmationMail advances next_confirmation_mail from prev to
	// next with a compare-and-swap and reports whether this caller won the
	// swap. A lost swap means a concurrent caller already reserved the
	// cool-down window.
	ReserveConfirmationMail(ctx context.Context, userID int64, prev *time.Time, next time.Time) (bool, error)
	// RestoreConfirmationMail writes back a previous cool-down value after a
	// failed mail delivery, releasing the reservation.
	RestoreConfirmationMail(ctx context.Context, userID int64, prev *time.Time) error
}

// IntervalStore provides data access for plan intervals.
//
// InUseForUpdate and BestPristineForUpdate lock the returned row (and, by
// locking order, serialize concurrent resolution for the same profile) so
// that the "at most one in_use interval per profile" invariant survives
// concurrent activation attempts.
type IntervalStore interface {
	Create(ctx context.Context, iv *PlanInterval) error
	Get(ctx context.Context, id int64) (*PlanInterval, error)
	// InUseForUpdate returns the profile's in_use interval, locked, or nil.
	InUseForUpdate(ctx context.Context, profileID int64) (*PlanInterval, error)
	// BestPristineForUpdate returns the profile's pristine interval with the
	// highest id (most recently created wins), locked, or nil.
	BestPristineForUpdate(ctx context.Context, profileID int64) (*PlanInterval, error)
	// MarkStarted transitions pristine -> in_use. The UPDATE is guarded on
	// state='pristine'; zero rows affected is a conflict.
	MarkStarted(ctx context.Context, id int64, at time.Time) error
	// MarkExpired transitions in_use -> expired. The UPDATE is guarded on
	// state='in_use'; zero rows affected is a conflict.
	MarkExpired(ctx context.Context, id int64) error
}

// PlanLogStore provides access to the append-only plan audit ledger.
// There are intentionally no update or delete methods; the ledger is
// write-once at every layer.
type PlanLogStore interface {
	Append(ctx context.Context, e *PlanLogEntry) error
	// ListByProfile returns the profile's entries, newest first.
	ListByProfile(ctx context.Context, profileID int64) ([]*PlanLogEntry, error)
}

// PrefixStore provides data access for storage prefixes.
type PrefixStore interface {
	Create(ctx context.Context, userID int64) (*Prefix, error)
	Get(ctx context.Context, id uuid.UUID) (*Prefix, error)
	ListByUser(ctx context.Context, userID int64) ([]*Prefix, error)
	// AddUsage atomically adds the deltas to the prefix's size and download
	// counters.
	AddUsage(ctx context.Context, id uuid.UUID, sizeDelta, downloadDelta int64) error
}

// Repos provides access to all repository instances bound to one database
// connection or transaction.
type Repos interface {
	Users() UserStore
	Plans() PlanStore
	Profiles() ProfileStore
	Intervals() IntervalStore
	PlanLog() PlanLogStore
	Prefixes() PrefixStore
}

// TxManager provides transactional execution across repositories. The
// repositories passed to fn are bound to a single database transaction;
// fn returning an error rolls everything back.
type TxManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// EmailAddress is a display name plus address pair.
type EmailAddress struct {
	Name    string
	Address string
}

// SendInput carries pre-rendered email content to an EmailProvider.
type SendInput struct {
	From     EmailAddress
	To       string
	Subject  string
	BodyText string
	BodyHTML string
}
