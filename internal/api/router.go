package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"accounting/internal/api/handlers"
	"accounting/internal/core"
	"accounting/internal/types"
)

// RouterConfig carries everything the router needs beyond the handlers.
type RouterConfig struct {
	APISecret      string
	RequestTimeout time.Duration
	Logger         *slog.Logger
	HealthProbes   []core.HealthProbe
}

// Handlers groups the handler set mounted under /api/v0.
type Handlers struct {
	Accounts *handlers.AccountsHandler
	Billing  *handlers.BillingHandler
	Block    *handlers.BlockHandler
	Prefix   *handlers.PrefixHandler
}

// NewRouter builds the full route tree.
//
// Authentication layout:
//   - /healthz, registration and the confirmation link are public.
//   - /api/v0/prefix uses user-token authentication.
//   - /api/v0/auth/* and /api/v0/quota require the API secret AND the
//     forwarded user token (the block server proxies its caller's header).
//   - /api/v0/plan/*, /api/v0/internal/* require the API secret only.
func NewRouter(cfg RouterConfig, users TokenUserResolver, h Handlers) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(core.RequestIDMiddleware)
	r.Use(core.Recoverer(logger))
	r.Use(core.RequestLogger(logger, core.DefaultRedactedHeaders))
	if cfg.RequestTimeout > 0 {
		r.Use(core.ContextTimeoutMiddleware(cfg.RequestTimeout))
	}

	r.Get("/healthz", core.HealthHandler(cfg.HealthProbes))

	r.Route("/api/v0", func(r chi.Router) {
		// Public.
		r.Group(h.Accounts.RegisterPublicRoutes)

		// User-token authenticated.
		r.Group(func(r chi.Router) {
			r.Use(TokenAuth(users))
			h.Prefix.RegisterRoutes(r)
		})

		// Block server: API secret plus the forwarded user token.
		r.Group(func(r chi.Router) {
			r.Use(core.APISecretMiddleware(cfg.APISecret))
			r.Use(TokenAuth(users))
			h.Block.RegisterAuthRoutes(r)
		})

		// Internal services: API secret only.
		r.Group(func(r chi.Router) {
			r.Use(core.APISecretMiddleware(cfg.APISecret))
			h.Billing.RegisterRoutes(r)
			h.Block.RegisterInternalRoutes(r)
			h.Accounts.RegisterInternalRoutes(r)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		core.JSON(w, r, http.StatusNotFound, core.APIErrorResponse{
			Error: core.ErrorDetail{
				Code:      "not_found",
				Message:   "unknown route",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
	})

	return r
}
