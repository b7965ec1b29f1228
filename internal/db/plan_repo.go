package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"accounting/internal/types"
)

// PlanRepository provides data access for the plans table. Plans are catalog
// entries; once referenced by a profile, interval, or log entry they are
// protected from deletion by RESTRICT foreign keys.
type PlanRepository struct {
	db DBTX
}

// NewPlanRepository creates a new PlanRepository backed by the given
// database connection (pool or transaction).
func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

// Create inserts a new plan. Plan IDs are stable slugs and never reused;
// inserting a duplicate ID is a conflict.
func (r *PlanRepository) Create(ctx context.Context, p *types.Plan) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plans (id, name, block_quota, monthly_traffic_quota)
		 VALUES ($1, $2, $3, $4)`,
		p.ID, p.Name, p.BlockQuota, p.MonthlyTrafficQuota,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return types.NewAppError(types.ErrCodeConflictPlanRef, "plan id already exists", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create plan", err)
	}
	return nil
}

// Get retrieves a plan by its ID.
func (r *PlanRepository) Get(ctx context.Context, id string) (*types.Plan, error) {
	var p types.Plan
	err := r.db.QueryRow(ctx,
		`SELECT id, name, block_quota, monthly_traffic_quota
		 FROM plans WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Name, &p.BlockQuota, &p.MonthlyTrafficQuota)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve plan", err)
	}
	return &p, nil
}

// List returns all plans ordered by ID.
func (r *PlanRepository) List(ctx context.Context) ([]*types.Plan, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, block_quota, monthly_traffic_quota
		 FROM plans ORDER BY id`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list plans", err)
	}
	defer rows.Close()

	var plans []*types.Plan
	for rows.Next() {
		var p types.Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.BlockQuota, &p.MonthlyTrafficQuota); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan plan row", err)
		}
		plans = append(plans, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating plan rows", err)
	}
	return plans, nil
}

// Delete removes a plan. The RESTRICT foreign keys on profiles, intervals and
// the audit ledger make this fail for any plan referenced by history; that
// failure is surfaced as ErrCodeConflictPlanRef, never as a cascade.
func (r *PlanRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM plans WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
			return types.NewAppError(types.ErrCodeConflictPlanRef,
				"plan is referenced by profiles, intervals, or the audit log", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return nil
}
