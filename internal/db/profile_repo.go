package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"accounting/internal/types"
)

// ProfileRepository provides data access for the profiles table.
//
// ReserveConfirmationMail implements the compare-and-swap half of the
// "reserve, act, compensate" confirmation-mail protocol: the cool-down
// timestamp is advanced only when its stored value still equals the value
// the caller read, so exactly one of any set of concurrent callers wins.
type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new ProfileRepository backed by the given
// database connection (pool or transaction).
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

const profileColumns = `user_id, subscribed_plan_id, created_on_behalf, needs_confirmation_after,
	next_confirmation_mail, used_storage, downloads, plus_notification_mail, pro_notification_mail, created_at`

func scanProfile(row pgx.Row) (*types.Profile, error) {
	var p types.Profile
	err := row.Scan(
		&p.UserID,
		&p.SubscribedPlanID,
		&p.CreatedOnBehalf,
		&p.NeedsConfirmationAfter,
		&p.NextConfirmationMail,
		&p.UsedStorage,
		&p.Downloads,
		&p.PlusNotificationMail,
		&p.ProNotificationMail,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a new profile. Called only from the account-creation
// transaction that also inserts the user row.
func (r *ProfileRepository) Create(ctx context.Context, p *types.Profile) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO profiles (user_id, subscribed_plan_id, created_on_behalf, needs_confirmation_after,
		                       next_confirmation_mail, used_storage, downloads,
		                       plus_notification_mail, pro_notification_mail, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.UserID, p.SubscribedPlanID, p.CreatedOnBehalf, p.NeedsConfirmationAfter,
		p.NextConfirmationMail, p.UsedStorage, p.Downloads,
		p.PlusNotificationMail, p.ProNotificationMail, p.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create profile", err)
	}
	return nil
}

// GetByUserID retrieves the profile owned by the given user.
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int64) (*types.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// GetByEmail retrieves a profile via the owning user's email address.
func (r *ProfileRepository) GetByEmail(ctx context.Context, email string) (*types.Profile, error) {
	p, err := scanProfile(r.db.QueryRow(ctx,
		`SELECT p.user_id, p.subscribed_plan_id, p.created_on_behalf, p.needs_confirmation_after,
		        p.next_confirmation_mail, p.used_storage, p.downloads,
		        p.plus_notification_mail, p.pro_notification_mail, p.created_at
		 FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE u.email = $1`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no such user", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve profile", err)
	}
	return p, nil
}

// SetSubscribedPlan reassigns the profile's fallback plan.
func (r *ProfileRepository) SetSubscribedPlan(ctx context.Context, userID int64, planID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles SET subscribed_plan_id = $1 WHERE user_id = $2`,
		planID, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set subscribed plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// AddUsage atomically adds deltas to the storage and download counters.
func (r *ProfileRepository) AddUsage(ctx context.Context, userID int64, storageDelta, downloadDelta int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles
		 SET used_storage = used_storage + $1,
		     downloads = downloads + $2
		 WHERE user_id = $3`,
		storageDelta, downloadDelta, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update profile counters", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
	}
	return nil
}

// ReserveConfirmationMail advances next_confirmation_mail from prev to next
// iff the stored value still equals prev. Returns true when this caller won
// the swap; false means a concurrent caller reserved the window first.
// IS NOT DISTINCT FROM makes the comparison NULL-safe for first-ever sends.
func (r *ProfileRepository) ReserveConfirmationMail(ctx context.Context, userID int64, prev *time.Time, next time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE profiles
		 SET next_confirmation_mail = $1
		 WHERE user_id = $2
		   AND next_confirmation_mail IS NOT DISTINCT FROM $3`,
		next, userID, prev)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to reserve confirmation mail window", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RestoreConfirmationMail writes back a previous cool-down value after a
// failed mail delivery, releasing the reservation so a later call may try
// again.
func (r *ProfileRepository) RestoreConfirmationMail(ctx context.Context, userID int64, prev *time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE profiles SET next_confirmation_mail = $1 WHERE user_id = $2`,
		prev, userID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to restore confirmation mail window", err)
	}
	return nil
}
