package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"accounting/internal/types"
)

// PrefixRepository provides data access for the prefixes table. Prefixes are
// the storage namespaces handed to the block server; IDs are generated here
// so allocation needs no coordination.
type PrefixRepository struct {
	db DBTX
}

// NewPrefixRepository creates a new PrefixRepository backed by the given
// database connection (pool or transaction).
func NewPrefixRepository(db DBTX) *PrefixRepository {
	return &PrefixRepository{db: db}
}

// Create allocates a new prefix for the user.
func (r *PrefixRepository) Create(ctx context.Context, userID int64) (*types.Prefix, error) {
	p := &types.Prefix{
		ID:     uuid.New(),
		UserID: userID,
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO prefixes (id, user_id, size, downloads, created_at)
		 VALUES ($1, $2, 0, 0, NOW())
		 RETURNING created_at`,
		p.ID, p.UserID,
	).Scan(&p.CreatedAt)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create prefix", err)
	}
	return p, nil
}

// Get retrieves a prefix by its ID.
func (r *PrefixRepository) Get(ctx context.Context, id uuid.UUID) (*types.Prefix, error) {
	var p types.Prefix
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, size, downloads, created_at FROM prefixes WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.UserID, &p.Size, &p.Downloads, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPrefix, "prefix not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve prefix", err)
	}
	return &p, nil
}

// ListByUser returns all prefixes owned by the user, oldest first.
func (r *PrefixRepository) ListByUser(ctx context.Context, userID int64) ([]*types.Prefix, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, size, downloads, created_at
		 FROM prefixes WHERE user_id = $1 ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list prefixes", err)
	}
	defer rows.Close()

	var prefixes []*types.Prefix
	for rows.Next() {
		var p types.Prefix
		if err := rows.Scan(&p.ID, &p.UserID, &p.Size, &p.Downloads, &p.CreatedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan prefix row", err)
		}
		prefixes = append(prefixes, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating prefix rows", err)
	}
	return prefixes, nil
}

// AddUsage atomically adds deltas to the prefix's size and download counters.
func (r *PrefixRepository) AddUsage(ctx context.Context, id uuid.UUID, sizeDelta, downloadDelta int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE prefixes
		 SET size = size + $1,
		     downloads = downloads + $2
		 WHERE id = $3`,
		sizeDelta, downloadDelta, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update prefix counters", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPrefix, "prefix not found", nil)
	}
	return nil
}
