// Package handlers contains the HTTP handler implementations for the
// accounting API. Handlers depend on narrow, consumer-defined service
// interfaces so they can be exercised with in-memory fakes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accounting/internal/core"
	"accounting/internal/types"
)

// BillingService is the subset of the billing service used by this handler.
type BillingService interface {
	Subscribe(ctx context.Context, userEmail, planID, origin string) (*types.Profile, error)
	AddInterval(ctx context.Context, userEmail, planID string, duration time.Duration, origin string) (*types.PlanInterval, error)
}

// SubscriptionRequest is the request body for POST /api/v0/plan/subscription.
type SubscriptionRequest struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	Plan      string `json:"plan" validate:"required"`
}

// SubscriptionResponse reports the profile's plan assignment after the change.
type SubscriptionResponse struct {
	UserID         int64  `json:"user_id"`
	SubscribedPlan string `json:"subscribed_plan"`
}

// AddIntervalRequest is the request body for POST /api/v0/plan/interval.
// Duration uses the billing wire format `[DD] [HH:[MM:]]ss[.uuuuuu]`.
type AddIntervalRequest struct {
	UserEmail string `json:"user_email" validate:"required,email"`
	Plan      string `json:"plan" validate:"required"`
	Duration  string `json:"duration" validate:"required"`
}

// AddIntervalResponse describes the interval created by the grant.
type AddIntervalResponse struct {
	IntervalID int64  `json:"interval_id"`
	Plan       string `json:"plan"`
	State      string `json:"state"`
}

// BillingHandler serves the internal plan-management endpoints consumed by
// the billing system.
type BillingHandler struct {
	billing   BillingService
	validator *core.Validator
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(billing BillingService, v *core.Validator, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{billing: billing, validator: v, logger: logger}
}

// RegisterRoutes mounts the plan endpoints on the given router. The caller
// is responsible for wrapping the group in API-secret authentication.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/plan/subscription", h.Subscribe)
	r.Post("/plan/interval", h.AddInterval)
}

// Subscribe handles POST /api/v0/plan/subscription. It reassigns the
// profile's subscribed plan and records a set-plan audit entry.
func (h *BillingHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscriptionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	profile, err := h.billing.Subscribe(r.Context(), req.UserEmail, req.Plan, originFrom(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, SubscriptionResponse{
		UserID:         profile.UserID,
		SubscribedPlan: profile.SubscribedPlanID,
	})
}

// AddInterval handles POST /api/v0/plan/interval. It creates a pristine
// prepaid interval; the grant starts consuming its duration only when the
// profile's plan is actually used.
func (h *BillingHandler) AddInterval(w http.ResponseWriter, r *http.Request) {
	var req AddIntervalRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	duration, err := types.ParseBillingDuration(req.Duration)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	iv, err := h.billing.AddInterval(r.Context(), req.UserEmail, req.Plan, duration, originFrom(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, AddIntervalResponse{
		IntervalID: iv.ID,
		Plan:       iv.PlanID,
		State:      string(iv.State),
	})
}

// originFrom derives the audit-log origin from the authenticated actor.
func originFrom(ctx context.Context) string {
	if actor, ok := types.GetActor(ctx); ok && actor.Source != "" {
		return actor.Source
	}
	return "api"
}
