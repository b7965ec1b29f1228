package db

import (
	"context"

	"accounting/internal/types"
)

// StatsRepository serves the read-only aggregate counts behind the metrics
// reporter: profile totals, interval counts by state, and subscriptions per
// plan. It runs directly against the pool; no transaction is needed for
// point-in-time gauges.
type StatsRepository struct {
	db DBTX
}

// NewStatsRepository creates a new StatsRepository backed by the given
// database connection.
func NewStatsRepository(db DBTX) *StatsRepository {
	return &StatsRepository{db: db}
}

// CountProfiles returns the total number of profiles.
func (r *StatsRepository) CountProfiles(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count profiles", err)
	}
	return n, nil
}

// CountIntervalsByState returns interval counts grouped by lifecycle state.
func (r *StatsRepository) CountIntervalsByState(ctx context.Context) (map[types.IntervalState]int64, error) {
	return NewIntervalRepository(r.db).CountByState(ctx)
}

// CountSubscriptionsByPlan returns, per plan, how many profiles currently
// have it as their subscribed (fallback) plan.
func (r *StatsRepository) CountSubscriptionsByPlan(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT subscribed_plan_id, COUNT(*) FROM profiles GROUP BY subscribed_plan_id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to count subscriptions", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var planID string
		var n int64
		if err := rows.Scan(&planID, &n); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan subscription count", err)
		}
		counts[planID] = n
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating subscription counts", err)
	}
	return counts, nil
}
