package core

import (
	"net/http"
	"strings"

	"telloo/internal/types"
)

// AuthMiddleware resolves the Caller for every request.
//
// Requests carrying a bearer token are authenticated against the configured
// Authenticator; an invalid, revoked, or malformed token is rejected with 401.
// Requests without an Authorization header are attributed to the trusted
// internal platform caller, unless RequireAPIKey is set, in which case they
// are rejected.
//
// The /health endpoint is exempt from authentication.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			if s.Config.Security.RequireAPIKey {
				Error(w, r, types.NewAppError(
					types.ErrCodeAuthTokenMissing,
					"authorization header is required",
					nil,
				))
				return
			}

			ctx := types.WithCaller(r.Context(), types.Caller{
				Label:    "internal",
				Internal: true,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			Error(w, r, types.NewAppError(
				types.ErrCodeAuthTokenInvalid,
				"authorization header must use the Bearer scheme",
				nil,
			))
			return
		}

		if s.Authenticator == nil {
			Error(w, r, types.NewAppError(
				types.ErrCodeAuthTokenInvalid,
				"bearer authentication is not configured",
				nil,
			))
			return
		}

		caller, err := s.Authenticator.Authenticate(r.Context(), token)
		if err != nil {
			Error(w, r, err)
			return
		}

		ctx := types.WithCaller(r.Context(), caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
