package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/onnwee/galeria/internal/auth"
)

// Authenticator resolves a bearer token to a principal.
type Authenticator interface {
	Authenticate(token string) (*auth.Principal, error)
}

// Error codes written by the auth middleware.
const (
	ErrCodeAuthRequired = "auth_required"
	ErrCodeTokenInvalid = "invalid_token"
	ErrCodeTokenExpired = "token_expired"
)

// RequireAuth rejects requests without a valid access token and stores the
// resolved principal on the request context.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, r, http.StatusUnauthorized, ErrCodeAuthRequired, "Authentication required")
				return
			}
			p, err := a.Authenticate(token)
			if err != nil {
				code, msg := ErrCodeTokenInvalid, "Invalid access token"
				if errors.Is(err, auth.ErrExpiredToken) {
					code, msg = ErrCodeTokenExpired, "Access token expired"
				}
				writeError(w, r, http.StatusUnauthorized, code, msg)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), p)))
		})
	}
}

// OptionalAuth stores the principal when a valid token is present and passes
// anonymous requests through. An invalid token is still rejected.
func OptionalAuth(a Authenticator) func(http.Handler) http.Handler {
	required := RequireAuth(a)
	return func(next http.Handler) http.Handler {
		withAuth := required(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := bearerToken(r); !ok {
				next.ServeHTTP(w, r)
				return
			}
			withAuth.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// writeError writes the API error envelope and records the code for logging.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	SetErrorCode(r.Context(), code)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
