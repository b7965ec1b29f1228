package api

import (
	"context"

	"accounting/internal/types"
)

// StoreAdapter narrows the repository registry to the read methods the
// handlers consume, flattening the per-table accessors into one surface.
type StoreAdapter struct {
	repos types.Repos
}

// NewStoreAdapter creates a StoreAdapter over non-transactional repositories.
func NewStoreAdapter(repos types.Repos) *StoreAdapter {
	return &StoreAdapter{repos: repos}
}

func (a *StoreAdapter) GetUserByID(ctx context.Context, id int64) (*types.User, error) {
	return a.repos.Users().GetByID(ctx, id)
}

func (a *StoreAdapter) GetUserByToken(ctx context.Context, token string) (*types.User, error) {
	return a.repos.Users().GetByToken(ctx, token)
}

func (a *StoreAdapter) GetProfileByUserID(ctx context.Context, userID int64) (*types.Profile, error) {
	return a.repos.Profiles().GetByUserID(ctx, userID)
}
