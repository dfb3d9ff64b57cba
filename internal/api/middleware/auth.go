package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/cloo-solutions/copilot/internal/api"
	"github.com/cloo-solutions/copilot/internal/domain"
)

type contextKey string

const PrincipalKey contextKey = "principal"

type AuthValidator interface {
	ValidateAPIKey(ctx context.Context, token string) (*domain.Principal, error)
}

// APIKeyAuth authenticates "Authorization: Bearer <key>" and stores the
// resulting principal in the request context.
func APIKeyAuth(validator AuthValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))

			principal, err := validator.ValidateAPIKey(r.Context(), token)
			if err != nil {
				var de *domain.DomainError
				if errors.As(err, &de) && de.Code == domain.ErrCodeUnauthorized {
					api.Error(w, http.StatusUnauthorized, "invalid api key")
					return
				}
				api.HandleError(w, r, err)
				return
			}

			if st := getState(r.Context()); st != nil {
				st.principal = principal
			}
			ctx := context.WithValue(r.Context(), PrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the authenticated caller, or nil. Middleware outside
// the auth handler sees the principal once the handler has run.
func GetPrincipal(ctx context.Context) *domain.Principal {
	if p, ok := ctx.Value(PrincipalKey).(*domain.Principal); ok {
		return p
	}
	if st := getState(ctx); st != nil {
		return st.principal
	}
	return nil
}
