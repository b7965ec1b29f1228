package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"accounting/internal/types"
)

// Registry bundles all repositories bound to a single DBTX. It implements
// types.Repos. Bound to the pool it serves plain reads; bound to a pgx.Tx
// (via PgxTxManager) all repository calls share one transaction.
type Registry struct {
	users     *UserRepository
	plans     *PlanRepository
	profiles  *ProfileRepository
	intervals *IntervalRepository
	planLog   *PlanLogRepository
	prefixes  *PrefixRepository
}

// NewRegistry creates a Registry with every repository bound to q.
func NewRegistry(q DBTX) *Registry {
	return &Registry{
		users:     NewUserRepository(q),
		plans:     NewPlanRepository(q),
		profiles:  NewProfileRepository(q),
		intervals: NewIntervalRepository(q),
		planLog:   NewPlanLogRepository(q),
		prefixes:  NewPrefixRepository(q),
	}
}

func (r *Registry) Users() types.UserStore         { return r.users }
func (r *Registry) Plans() types.PlanStore         { return r.plans }
func (r *Registry) Profiles() types.ProfileStore   { return r.profiles }
func (r *Registry) Intervals() types.IntervalStore { return r.intervals }
func (r *Registry) PlanLog() types.PlanLogStore    { return r.planLog }
func (r *Registry) Prefixes() types.PrefixStore    { return r.prefixes }

// PgxTxManager implements types.TxManager on a pgx connection pool.
// Each RunInTx call opens one transaction, hands fn a Registry bound to it,
// and commits iff fn returns nil.
type PgxTxManager struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPgxTxManager creates a transaction manager on the given pool.
func NewPgxTxManager(pool *pgxpool.Pool, logger *slog.Logger) *PgxTxManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgxTxManager{pool: pool, logger: logger}
}

// RunInTx executes fn inside a database transaction. The rollback on error is
// best-effort; a failed rollback is logged but the original error wins.
func (m *PgxTxManager) RunInTx(ctx context.Context, fn func(ctx context.Context, r types.Repos) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}

	if err := fn(ctx, NewRegistry(tx)); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			m.logger.Error("transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, fmt.Sprintf("failed to commit transaction: %v", err), err)
	}
	return nil
}
