// Package quota applies block-server usage reports to the per-profile and
// per-prefix counters.
package quota

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"accounting/internal/types"
)

// Service dispatches quota operations reported by the block server.
type Service struct {
	tx     types.TxManager
	logger *slog.Logger
}

// NewService creates a quota Service.
func NewService(tx types.TxManager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, logger: logger}
}

// HandleRequest applies one usage report. A store op adds size (which may be
// negative, for deletions) to the profile's used storage and the prefix's
// size. A get op adds a non-negative size to both download counters. Both
// row updates happen in one transaction so the counters never drift apart.
func (s *Service) HandleRequest(ctx context.Context, op types.QuotaOp, size int64, prefixID uuid.UUID, userID int64) error {
	var storageDelta, downloadDelta int64
	switch op {
	case types.QuotaStore:
		storageDelta = size
	case types.QuotaGet:
		if size < 0 {
			return types.NewAppError(types.ErrCodeValidationNegativeDownload,
				"download size must not be negative", nil)
		}
		downloadDelta = size
	default:
		return types.NewAppError(types.ErrCodeValidationUnknownAction,
			"unknown quota operation", nil)
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		if err := r.Profiles().AddUsage(ctx, userID, storageDelta, downloadDelta); err != nil {
			return err
		}
		return r.Prefixes().AddUsage(ctx, prefixID, storageDelta, downloadDelta)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("quota update applied",
		"user_id", userID, "prefix", prefixID, "op", op, "size", size)
	return nil
}
