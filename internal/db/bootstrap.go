package db

import (
	"context"

	"accounting/internal/types"
)

// Default quotas for the free plan: 2 GiB of block storage and 20 GiB of
// monthly traffic.
const (
	DefaultBlockQuota          = 2 * 1024 * 1024 * 1024
	DefaultMonthlyTrafficQuota = 20 * 1024 * 1024 * 1024
)

// EnsureFreePlan inserts the free plan if it is missing. Existing rows are
// left untouched so operators can tune the free quotas without the service
// resetting them on restart.
func EnsureFreePlan(ctx context.Context, q DBTX) error {
	_, err := q.Exec(ctx,
		`INSERT INTO plans (id, name, block_quota, monthly_traffic_quota)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		types.FreePlanID, "Free", int64(DefaultBlockQuota), int64(DefaultMonthlyTrafficQuota))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure free plan", err)
	}
	return nil
}
