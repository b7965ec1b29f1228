package db

import (
	"context"

	"accounting/internal/types"
)

// PlanLogRepository provides access to the plan_log table, the append-only
// audit ledger of plan actions.
//
// The ledger is write-once at every layer: this repository exposes no update
// or delete methods, the Update and Delete guards below fail unconditionally
// for callers that reach for them through the concrete type, and the table
// itself carries no UPDATE/DELETE grants for the service role.
type PlanLogRepository struct {
	db DBTX
}

// NewPlanLogRepository creates a new PlanLogRepository backed by the given
// database connection (pool or transaction).
func NewPlanLogRepository(db DBTX) *PlanLogRepository {
	return &PlanLogRepository{db: db}
}

// Append inserts a new ledger entry. The timestamp is server-assigned;
// whatever the caller put in e.Timestamp is ignored and replaced with the
// database's now().
func (r *PlanLogRepository) Append(ctx context.Context, e *types.PlanLogEntry) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO plan_log (profile_id, plan_id, interval_id, action, timestamp, origin)
		 VALUES ($1, $2, $3, $4, NOW(), $5)
		 RETURNING id, timestamp`,
		e.ProfileID, e.PlanID, e.IntervalID, e.Action, e.Origin,
	).Scan(&e.ID, &e.Timestamp)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append plan log entry", err)
	}
	return nil
}

// ListByProfile returns the profile's ledger entries, newest first.
func (r *PlanLogRepository) ListByProfile(ctx context.Context, profileID int64) ([]*types.PlanLogEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, profile_id, plan_id, interval_id, action, timestamp, origin
		 FROM plan_log
		 WHERE profile_id = $1
		 ORDER BY id DESC`,
		profileID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plan log", err)
	}
	defer rows.Close()

	var entries []*types.PlanLogEntry
	for rows.Next() {
		var e types.PlanLogEntry
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.PlanID, &e.IntervalID, &e.Action, &e.Timestamp, &e.Origin); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan log row", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating plan log rows", err)
	}
	return entries, nil
}

// Update unconditionally fails: ledger entries are immutable once written.
func (r *PlanLogRepository) Update(ctx context.Context, e *types.PlanLogEntry) error {
	return types.NewAppError(types.ErrCodeConflictAuditLog, "plan log entries cannot be modified", nil)
}

// Delete unconditionally fails: ledger entries are never removed.
func (r *PlanLogRepository) Delete(ctx context.Context, id int64) error {
	return types.NewAppError(types.ErrCodeConflictAuditLog, "plan log entries cannot be deleted", nil)
}
