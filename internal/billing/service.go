// Package billing implements the plan, subscription, and prepaid-interval
// engine. Every mutating operation runs inside one database transaction and
// appends its audit ledger entry in that same transaction, so a state
// transition and its log line commit together or not at all.
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"accounting/internal/types"
)

// Service owns the plan/interval state machine.
//
// Interval lifecycle: pristine -> in_use -> expired, never reversed. Expiry
// is a derived fact (now past started_at+duration) persisted lazily when an
// interval is observed, never by a timer. Resolution for "which plan applies
// to this profile right now" comes in two flavors: Peek (read-only, never
// activates a grant) and GetOrStart (activates the best pristine grant when
// nothing is in use). Only an explicit usage signal goes through the latter.
type Service struct {
	tx     types.TxManager
	clock  types.Clock
	logger *slog.Logger
}

// NewService creates a billing Service.
func NewService(tx types.TxManager, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{tx: tx, clock: clock, logger: logger}
}

// Subscribe reassigns the profile's fallback plan and records a set-plan
// ledger entry. The user is identified by email (the billing system's handle
// for accounts).
func (s *Service) Subscribe(ctx context.Context, userEmail, planID, origin string) (*types.Profile, error) {
	var profile *types.Profile
	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		var err error
		profile, err = r.Profiles().GetByEmail(ctx, userEmail)
		if err != nil {
			return err
		}
		plan, err := r.Plans().Get(ctx, planID)
		if err != nil {
			return err
		}
		if err := r.Profiles().SetSubscribedPlan(ctx, profile.UserID, plan.ID); err != nil {
			return err
		}
		profile.SubscribedPlanID = plan.ID
		return r.PlanLog().Append(ctx, &types.PlanLogEntry{
			ProfileID: profile.UserID,
			PlanID:    plan.ID,
			Action:    types.ActionSetPlan,
			Origin:    origin,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("subscribed plan set",
		"user_id", profile.UserID, "plan", planID, "origin", origin)
	return profile, nil
}

// AddInterval creates a pristine prepaid grant of the plan for the user and
// logs add-interval immediately, before the interval is ever started.
func (s *Service) AddInterval(ctx context.Context, userEmail, planID string, duration time.Duration, origin string) (*types.PlanInterval, error) {
	var iv *types.PlanInterval
	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		profile, err := r.Profiles().GetByEmail(ctx, userEmail)
		if err != nil {
			return err
		}
		plan, err := r.Plans().Get(ctx, planID)
		if err != nil {
			return err
		}
		iv = &types.PlanInterval{
			ProfileID: profile.UserID,
			PlanID:    plan.ID,
			Duration:  duration,
			State:     types.IntervalPristine,
		}
		if err := r.Intervals().Create(ctx, iv); err != nil {
			return err
		}
		return r.PlanLog().Append(ctx, &types.PlanLogEntry{
			ProfileID:  profile.UserID,
			PlanID:     plan.ID,
			IntervalID: &iv.ID,
			Action:     types.ActionAddInterval,
			Origin:     origin,
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("plan interval granted",
		"user_id", iv.ProfileID, "plan", planID, "interval_id", iv.ID,
		"duration", duration, "origin", origin)
	return iv, nil
}

// StartInterval activates a pristine interval. Starting an interval in any
// other state fails with an invalid-state error naming the current state.
func (s *Service) StartInterval(ctx context.Context, intervalID int64, origin string) error {
	return s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		iv, err := r.Intervals().Get(ctx, intervalID)
		if err != nil {
			return err
		}
		return s.startLocked(ctx, r, iv, origin)
	})
}

// CheckExpiry observes an interval's freshness, persisting the expired state
// if its time ran out. Checking a pristine interval is an error; checking an
// already-expired one is an idempotent no-op.
func (s *Service) CheckExpiry(ctx context.Context, intervalID int64, origin string) (types.ExpiryResult, error) {
	var result types.ExpiryResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		iv, err := r.Intervals().Get(ctx, intervalID)
		if err != nil {
			return err
		}
		result, err = s.checkExpiryLocked(ctx, r, iv, origin)
		return err
	})
	return result, err
}

// PeekInterval returns the interval that currently applies to the profile
// without activating anything: the in_use interval if still fresh, else the
// most recently created pristine interval, else nil. A stale in_use interval
// is expired (and logged) as a side effect of the freshness check.
func (s *Service) PeekInterval(ctx context.Context, profileID int64, origin string) (*types.PlanInterval, error) {
	var iv *types.PlanInterval
	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		var err error
		iv, err = s.resolveLocked(ctx, r, profileID, false, origin)
		return err
	})
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// GetOrStartInterval resolves like PeekInterval but activates the chosen
// pristine interval. This is the only path that causes a grant to begin
// consuming its duration.
func (s *Service) GetOrStartInterval(ctx context.Context, profileID int64, origin string) (*types.PlanInterval, error) {
	var iv *types.PlanInterval
	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		var err error
		iv, err = s.resolveLocked(ctx, r, profileID, true, origin)
		return err
	})
	if err != nil {
		return nil, err
	}
	return iv, nil
}

// EffectivePlan resolves the plan that applies to the profile right now
// without consuming any grant: the peeked interval's plan if one exists,
// else the subscribed plan. Never nil on success.
func (s *Service) EffectivePlan(ctx context.Context, profileID int64, origin string) (*types.Plan, error) {
	return s.resolvePlan(ctx, profileID, false, origin)
}

// UsePlan resolves the profile's plan for actual consumption, activating the
// best pristine interval when nothing is in use.
func (s *Service) UsePlan(ctx context.Context, profileID int64, origin string) (*types.Plan, error) {
	return s.resolvePlan(ctx, profileID, true, origin)
}

func (s *Service) resolvePlan(ctx context.Context, profileID int64, activate bool, origin string) (*types.Plan, error) {
	var plan *types.Plan
	err := s.tx.RunInTx(ctx, func(ctx context.Context, r types.Repos) error {
		profile, err := r.Profiles().GetByUserID(ctx, profileID)
		if err != nil {
			return err
		}
		iv, err := s.resolveLocked(ctx, r, profileID, activate, origin)
		if err != nil {
			return err
		}
		planID := profile.SubscribedPlanID
		if iv != nil {
			planID = iv.PlanID
		}
		plan, err = r.Plans().Get(ctx, planID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// resolveLocked finds the interval that applies to the profile. It runs
// inside the caller's transaction; the FOR UPDATE row locks taken by the
// interval store serialize concurrent resolutions for the same profile, which
// is what keeps at most one interval in_use.
func (s *Service) resolveLocked(ctx context.Context, r types.Repos, profileID int64, activate bool, origin string) (*types.PlanInterval, error) {
	inUse, err := r.Intervals().InUseForUpdate(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if inUse != nil {
		result, err := s.checkExpiryLocked(ctx, r, inUse, origin)
		if err != nil {
			return nil, err
		}
		if result == types.ExpiryStillValid {
			return inUse, nil
		}
		// The in_use interval just lapsed; resolution falls through to the
		// pristine candidates.
	}

	best, err := r.Intervals().BestPristineForUpdate(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if best == nil {
		return nil, nil
	}
	if activate {
		if err := s.startLocked(ctx, r, best, origin); err != nil {
			return nil, err
		}
	}
	return best, nil
}

// startLocked transitions a pristine interval to in_use and appends the
// start-interval ledger entry in the same transaction.
func (s *Service) startLocked(ctx context.Context, r types.Repos, iv *types.PlanInterval, origin string) error {
	if iv.State != types.IntervalPristine {
		return types.NewAppErrorWithDetails(
			types.ErrCodeConflictInvalidState,
			fmt.Sprintf("cannot start interval in state %q", iv.State),
			nil,
			map[string]any{"interval_id": iv.ID, "state": string(iv.State)},
		)
	}
	now := s.clock.Now()
	if err := r.Intervals().MarkStarted(ctx, iv.ID, now); err != nil {
		return err
	}
	iv.State = types.IntervalInUse
	iv.StartedAt = &now
	return r.PlanLog().Append(ctx, &types.PlanLogEntry{
		ProfileID:  iv.ProfileID,
		PlanID:     iv.PlanID,
		IntervalID: &iv.ID,
		Action:     types.ActionStartInterval,
		Origin:     origin,
	})
}

// checkExpiryLocked applies the expiry rule to a started interval. The
// boundary is exclusive: an interval observed exactly at started_at+duration
// is still valid, one microsecond later it is not.
func (s *Service) checkExpiryLocked(ctx context.Context, r types.Repos, iv *types.PlanInterval, origin string) (types.ExpiryResult, error) {
	switch iv.State {
	case types.IntervalPristine:
		return "", types.NewAppErrorWithDetails(
			types.ErrCodeConflictInvalidState,
			"cannot check expiry of a pristine interval",
			nil,
			map[string]any{"interval_id": iv.ID, "state": string(iv.State)},
		)
	case types.IntervalExpired:
		return types.ExpiryAlreadyExpired, nil
	}

	if !s.clock.Now().After(iv.ExpiresAt()) {
		return types.ExpiryStillValid, nil
	}

	if err := r.Intervals().MarkExpired(ctx, iv.ID); err != nil {
		return "", err
	}
	iv.State = types.IntervalExpired
	if err := r.PlanLog().Append(ctx, &types.PlanLogEntry{
		ProfileID:  iv.ProfileID,
		PlanID:     iv.PlanID,
		IntervalID: &iv.ID,
		Action:     types.ActionExpiredInterval,
		Origin:     origin,
	}); err != nil {
		return "", err
	}
	return types.ExpiryJustExpired, nil
}
