package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"accounting/internal/accounts"
	"accounting/internal/core"
	"accounting/internal/types"
)

// AccountsService is the subset of the accounts service used by the
// registration and confirmation endpoints.
type AccountsService interface {
	CreateAccount(ctx context.Context, params accounts.CreateAccountParams) (*types.User, *types.Profile, error)
	ConfirmEmail(ctx context.Context, userID int64) error
}

// TokenResolver resolves a confirmation token back to its user.
type TokenResolver interface {
	GetUserByToken(ctx context.Context, token string) (*types.User, error)
}

// RegisterRequest is the request body for account registration.
type RegisterRequest struct {
	Username             string `json:"username" validate:"required,min=2,max=64"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required"`
	PlusNotificationMail bool   `json:"plus_notification_mail"`
	ProNotificationMail  bool   `json:"pro_notification_mail"`
}

// RegisterResponse reports the created identity.
type RegisterResponse struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

// AccountsHandler serves registration and email confirmation.
type AccountsHandler struct {
	accounts  AccountsService
	tokens    TokenResolver
	validator *core.Validator
	logger    *slog.Logger
}

// NewAccountsHandler creates an AccountsHandler.
func NewAccountsHandler(svc AccountsService, tokens TokenResolver, v *core.Validator, logger *slog.Logger) *AccountsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountsHandler{accounts: svc, tokens: tokens, validator: v, logger: logger}
}

// RegisterPublicRoutes mounts the unauthenticated endpoints: self-service
// registration and the confirmation link target.
func (h *AccountsHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/auth/registration", h.Register)
	r.Get("/confirm/{token}", h.Confirm)
}

// RegisterInternalRoutes mounts the on-behalf registration endpoint used by
// the sales backend. The group must carry API-secret authentication.
func (h *AccountsHandler) RegisterInternalRoutes(r chi.Router) {
	r.Post("/internal/user/register", h.RegisterOnBehalf)
}

// Register handles POST /api/v0/auth/registration.
func (h *AccountsHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, false)
}

// RegisterOnBehalf handles POST /api/v0/internal/user/register. Accounts
// created this way are permanently exempt from the confirmation deadline.
func (h *AccountsHandler) RegisterOnBehalf(w http.ResponseWriter, r *http.Request) {
	h.register(w, r, true)
}

func (h *AccountsHandler) register(w http.ResponseWriter, r *http.Request, onBehalf bool) {
	var req RegisterRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, _, err := h.accounts.CreateAccount(r.Context(), accounts.CreateAccountParams{
		Username:             req.Username,
		Email:                req.Email,
		Password:             req.Password,
		CreatedOnBehalf:      onBehalf,
		PlusNotificationMail: req.PlusNotificationMail,
		ProNotificationMail:  req.ProNotificationMail,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, RegisterResponse{
		UserID: user.ID,
		Token:  user.Token,
	})
}

// Confirm handles GET /api/v0/confirm/{token}, the target of the link in
// the confirmation email.
func (h *AccountsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
			"confirmation token required", nil))
		return
	}

	user, err := h.tokens.GetUserByToken(r.Context(), token)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.accounts.ConfirmEmail(r.Context(), user.ID); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("email confirmed", "user_id", user.ID)
	core.JSON(w, r, http.StatusOK, map[string]string{"detail": "email confirmed"})
}
