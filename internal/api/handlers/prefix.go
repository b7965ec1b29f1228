package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"accounting/internal/core"
	"accounting/internal/types"
)

// PrefixAllocator lists and allocates storage prefixes for a user.
type PrefixAllocator interface {
	Create(ctx context.Context, userID int64) (*types.Prefix, error)
	ListByUser(ctx context.Context, userID int64) ([]*types.Prefix, error)
}

// PrefixHandler serves the user-facing prefix endpoints.
type PrefixHandler struct {
	prefixes PrefixAllocator
	logger   *slog.Logger
}

// NewPrefixHandler creates a PrefixHandler.
func NewPrefixHandler(prefixes PrefixAllocator, logger *slog.Logger) *PrefixHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrefixHandler{prefixes: prefixes, logger: logger}
}

// RegisterRoutes mounts the prefix endpoints. The group must carry
// user-token authentication.
func (h *PrefixHandler) RegisterRoutes(r chi.Router) {
	r.Get("/prefix", h.List)
	r.Post("/prefix", h.Allocate)
}

// List handles GET /api/v0/prefix, returning the ids of the user's prefixes.
func (h *PrefixHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := userActor(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	prefixes, err := h.prefixes.ListByUser(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(prefixes))
	for _, p := range prefixes {
		ids = append(ids, p.ID)
	}
	core.JSON(w, r, http.StatusOK, ids)
}

// Allocate handles POST /api/v0/prefix, creating a new prefix for the user.
func (h *PrefixHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	actor, err := userActor(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	prefix, err := h.prefixes.Create(r.Context(), actor.UserID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("prefix allocated", "user_id", actor.UserID, "prefix", prefix.ID)
	core.JSON(w, r, http.StatusCreated, prefix.ID)
}
