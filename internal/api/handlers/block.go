package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"accounting/internal/core"
	"accounting/internal/types"
)

// PrefixReader resolves prefixes for ownership checks.
type PrefixReader interface {
	Get(ctx context.Context, id uuid.UUID) (*types.Prefix, error)
}

// QuotaService dispatches block-server accounting operations.
type QuotaService interface {
	HandleRequest(ctx context.Context, op types.QuotaOp, size int64, prefixID uuid.UUID, userID int64) error
}

// AccountReader loads the user and profile rows behind an internal lookup.
type AccountReader interface {
	GetUserByID(ctx context.Context, id int64) (*types.User, error)
	GetProfileByUserID(ctx context.Context, userID int64) (*types.Profile, error)
}

// AccountPolicy answers confirmation-state questions and drives the
// confirmation-mail side effect of an internal lookup.
type AccountPolicy interface {
	IsAllowed(user *types.User, profile *types.Profile) bool
	CheckConfirmationAndSendMail(ctx context.Context, user *types.User, profile *types.Profile) (bool, error)
}

// PlanConsumer resolves the effective plan while consuming a pending grant.
type PlanConsumer interface {
	UsePlan(ctx context.Context, profileID int64, origin string) (*types.Plan, error)
}

// QuotaRequest is the request body for POST /api/v0/quota.
type QuotaRequest struct {
	Prefix string `json:"prefix" validate:"required,uuid"`
	Action string `json:"action" validate:"required"`
	Size   int64  `json:"size"`
}

// InternalUserResponse is the block server's view of an account. The quota
// fields come from the effective plan, which may be an interval grant rather
// than the subscribed plan.
type InternalUserResponse struct {
	UserID              int64 `json:"user_id"`
	Active              bool  `json:"active"`
	BlockQuota          int64 `json:"block_quota"`
	MonthlyTrafficQuota int64 `json:"monthly_traffic_quota"`
}

// BlockHandler serves the endpoints consumed by the block server: resource
// authorization, quota accounting, and the internal user lookup.
type BlockHandler struct {
	prefixes  PrefixReader
	quota     QuotaService
	accounts  AccountReader
	policy    AccountPolicy
	billing   PlanConsumer
	validator *core.Validator
	logger    *slog.Logger
}

// NewBlockHandler creates a BlockHandler.
func NewBlockHandler(
	prefixes PrefixReader,
	quota QuotaService,
	accounts AccountReader,
	policy AccountPolicy,
	billing PlanConsumer,
	v *core.Validator,
	logger *slog.Logger,
) *BlockHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BlockHandler{
		prefixes:  prefixes,
		quota:     quota,
		accounts:  accounts,
		policy:    policy,
		billing:   billing,
		validator: v,
		logger:    logger,
	}
}

// RegisterAuthRoutes mounts the resource-authorization endpoints. The group
// must carry both API-secret and user-token authentication: the block server
// forwards the user's Authorization header along with its own secret.
func (h *BlockHandler) RegisterAuthRoutes(r chi.Router) {
	r.Get("/auth/{prefix}/*", h.AuthorizeRead)
	r.Post("/auth/{prefix}/*", h.AuthorizeWrite)
	r.Delete("/auth/{prefix}/*", h.AuthorizeWrite)
	r.Post("/quota", h.Quota)
}

// RegisterInternalRoutes mounts the internal user lookup. The group carries
// API-secret authentication only.
func (h *BlockHandler) RegisterInternalRoutes(r chi.Router) {
	r.Get("/internal/user", h.InternalUser)
}

// AuthorizeRead handles GET /api/v0/auth/{prefix}/*. Reads are allowed for
// any authenticated user; the response never carries a body.
func (h *BlockHandler) AuthorizeRead(w http.ResponseWriter, r *http.Request) {
	if _, err := userActor(r.Context()); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AuthorizeWrite handles POST and DELETE on /api/v0/auth/{prefix}/*. Writes
// require the prefix to belong to the authenticated user.
func (h *BlockHandler) AuthorizeWrite(w http.ResponseWriter, r *http.Request) {
	actor, err := userActor(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	prefixID, err := uuid.Parse(chi.URLParam(r, "prefix"))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionPrefix,
			"prefix is not owned by the authenticated user", err))
		return
	}

	prefix, err := h.prefixes.Get(r.Context(), prefixID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if prefix.UserID != actor.UserID {
		core.Error(w, r, types.NewAppError(types.ErrCodePermissionPrefix,
			"prefix is not owned by the authenticated user", nil))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Quota handles POST /api/v0/quota, accounting an upload, deletion, or
// download against the user's profile and prefix counters.
func (h *BlockHandler) Quota(w http.ResponseWriter, r *http.Request) {
	actor, err := userActor(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req QuotaRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	op, err := types.ParseQuotaOp(req.Action)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	prefixID, err := uuid.Parse(req.Prefix)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeNotFoundPrefix,
			"unknown prefix", err))
		return
	}

	if err := h.quota.HandleRequest(r.Context(), op, req.Size, prefixID, actor.UserID); err != nil {
		core.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// InternalUser handles GET /api/v0/internal/user?user-id=N. The lookup
// counts as plan usage (a pending interval grant is activated) and, for
// unconfirmed accounts, may trigger a confirmation email.
func (h *BlockHandler) InternalUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user-id"), 10, 64)
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField,
			"user-id must be an integer", err))
		return
	}

	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	profile, err := h.accounts.GetProfileByUserID(r.Context(), userID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	disabled, err := h.policy.CheckConfirmationAndSendMail(r.Context(), user, profile)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	plan, err := h.billing.UsePlan(r.Context(), profile.UserID, originFrom(r.Context()))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, InternalUserResponse{
		UserID:              user.ID,
		Active:              !disabled,
		BlockQuota:          plan.BlockQuota,
		MonthlyTrafficQuota: plan.MonthlyTrafficQuota,
	})
}

// userActor extracts the token-authenticated user from the context.
func userActor(ctx context.Context) (types.Actor, error) {
	actor, ok := types.GetActor(ctx)
	if !ok || actor.Type != types.ActorTypeUser {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"user authentication required", nil)
	}
	return actor, nil
}
