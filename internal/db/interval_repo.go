package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"accounting/internal/types"
)

// IntervalRepository provides data access for the plan_intervals table.
//
// Key invariants:
//   - Durations are stored as microseconds (duration_us) to survive the
//     round trip without driver-dependent interval handling.
//   - The FOR UPDATE queries lock the candidate rows so two concurrent
//     resolutions for the same profile serialize; this is what keeps the
//     "at most one in_use interval per profile" invariant under concurrency.
//   - MarkStarted/MarkExpired guard the UPDATE on the expected source state
//     and report zero affected rows as a conflict, so a transition can never
//     be applied twice or out of order.
type IntervalRepository struct {
	db DBTX
}

// NewIntervalRepository creates a new IntervalRepository backed by the given
// database connection (pool or transaction).
func NewIntervalRepository(db DBTX) *IntervalRepository {
	return &IntervalRepository{db: db}
}

const intervalColumns = `id, profile_id, plan_id, duration_us, state, started_at`

func scanInterval(row pgx.Row) (*types.PlanInterval, error) {
	var iv types.PlanInterval
	var durationUs int64
	err := row.Scan(
		&iv.ID,
		&iv.ProfileID,
		&iv.PlanID,
		&durationUs,
		&iv.State,
		&iv.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	iv.Duration = time.Duration(durationUs) * time.Microsecond
	return &iv, nil
}

// Create inserts a new interval in its current state and fills in the
// generated ID. The billing API creates intervals pristine.
func (r *IntervalRepository) Create(ctx context.Context, iv *types.PlanInterval) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO plan_intervals (profile_id, plan_id, duration_us, state, started_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		iv.ProfileID, iv.PlanID, iv.Duration.Microseconds(), iv.State, iv.StartedAt,
	).Scan(&iv.ID)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create plan interval", err)
	}
	return nil
}

// Get retrieves an interval by ID.
func (r *IntervalRepository) Get(ctx context.Context, id int64) (*types.PlanInterval, error) {
	iv, err := scanInterval(r.db.QueryRow(ctx,
		`SELECT `+intervalColumns+` FROM plan_intervals WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundInterval, "plan interval not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve plan interval", err)
	}
	return iv, nil
}

// InUseForUpdate returns the profile's in_use interval, locked for the
// duration of the surrounding transaction, or nil when none exists.
func (r *IntervalRepository) InUseForUpdate(ctx context.Context, profileID int64) (*types.PlanInterval, error) {
	iv, err := scanInterval(r.db.QueryRow(ctx,
		`SELECT `+intervalColumns+`
		 FROM plan_intervals
		 WHERE profile_id = $1 AND state = $2
		 ORDER BY id DESC
		 LIMIT 1
		 FOR UPDATE`,
		profileID, types.IntervalInUse))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query in-use interval", err)
	}
	return iv, nil
}

// BestPristineForUpdate returns the profile's pristine interval with the
// highest id (most recently created wins ties), locked, or nil.
func (r *IntervalRepository) BestPristineForUpdate(ctx context.Context, profileID int64) (*types.PlanInterval, error) {
	iv, err := scanInterval(r.db.QueryRow(ctx,
		`SELECT `+intervalColumns+`
		 FROM plan_intervals
		 WHERE profile_id = $1 AND state = $2
		 ORDER BY id DESC
		 LIMIT 1
		 FOR UPDATE`,
		profileID, types.IntervalPristine))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query pristine interval", err)
	}
	return iv, nil
}

// MarkStarted transitions an interval from pristine to in_use and records the
// activation time. The UPDATE is guarded on state='pristine'; zero affected
// rows means the interval moved underneath us and is a conflict.
func (r *IntervalRepository) MarkStarted(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plan_intervals
		 SET state = $1, started_at = $2
		 WHERE id = $3 AND state = $4`,
		types.IntervalInUse, at, id, types.IntervalPristine)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to start plan interval", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictConcurrent,
			"interval was not pristine at start time", nil)
	}
	return nil
}

// MarkExpired transitions an interval from in_use to expired. Guarded like
// MarkStarted so repeated expiry observations cannot double-apply.
func (r *IntervalRepository) MarkExpired(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plan_intervals
		 SET state = $1
		 WHERE id = $2 AND state = $3`,
		types.IntervalExpired, id, types.IntervalInUse)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to expire plan interval", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictConcurrent,
			"interval was not in_use at expiry time", nil)
	}
	return nil
}

// CountByState returns interval counts grouped by state. Used by the metrics
// reporter.
func (r *IntervalRepository) CountByState(ctx context.Context) (map[types.IntervalState]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT state, COUNT(*) FROM plan_intervals GROUP BY state`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count intervals", err)
	}
	defer rows.Close()

	counts := make(map[types.IntervalState]int64)
	for rows.Next() {
		var state types.IntervalState
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan interval count", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating interval counts", err)
	}
	return counts, nil
}
