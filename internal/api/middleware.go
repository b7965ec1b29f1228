// Package api assembles the HTTP surface: route layout, authentication
// middleware, and the wiring between handlers and services.
package api

import (
	"context"
	"net/http"
	"strings"

	"accounting/internal/core"
	"accounting/internal/types"
)

// TokenUserResolver resolves bearer tokens to users for request
// authentication.
type TokenUserResolver interface {
	GetByToken(ctx context.Context, token string) (*types.User, error)
}

// TokenAuth authenticates requests carrying `Authorization: Token <value>`,
// the header the block server forwards unchanged from its own caller. The
// resolved user becomes the request actor.
func TokenAuth(users TokenUserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := parseTokenHeader(r.Header.Get("Authorization"))
			if !ok {
				core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing,
					"missing or malformed Authorization header", nil))
				return
			}

			// The store maps unknown tokens to an auth error already.
			user, err := users.GetByToken(r.Context(), token)
			if err != nil {
				core.Error(w, r, err)
				return
			}
			if !user.IsActive {
				core.Error(w, r, types.NewAppError(types.ErrCodeAuthUserDisabled,
					"account is disabled", nil))
				return
			}

			ctx := types.WithActor(r.Context(), types.Actor{
				UserID: user.ID,
				Type:   types.ActorTypeUser,
				Source: user.Username,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseTokenHeader(header string) (string, bool) {
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Token") {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
