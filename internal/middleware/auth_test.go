package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/onnwee/galeria/internal/auth"
)

const testSecret = "middleware-test-secret-0123456789"

func TestRequireAuth(t *testing.T) {
	svc := auth.NewJWTService(testSecret)
	access, _ := svc.GenerateAccessToken("user-1", "ala@example.com")
	refresh, _ := svc.GenerateRefreshToken("user-1")
	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
		Type: auth.TokenTypeAccess,
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"valid token", "Bearer " + access, http.StatusOK, ""},
		{"lowercase scheme", "bearer " + access, http.StatusOK, ""},
		{"missing header", "", http.StatusUnauthorized, ErrCodeAuthRequired},
		{"wrong scheme", "Basic " + access, http.StatusUnauthorized, ErrCodeAuthRequired},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ErrCodeTokenInvalid},
		{"refresh token", "Bearer " + refresh, http.StatusUnauthorized, ErrCodeTokenInvalid},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, ErrCodeTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *auth.Principal
			handler := RequireAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = GetPrincipal(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/folders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if tt.wantStatus == http.StatusOK {
				if got == nil || got.UserID != "user-1" {
					t.Errorf("unexpected principal %+v", got)
				}
				return
			}

			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, body.Error.Code)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	svc := auth.NewJWTService(testSecret)
	access, _ := svc.GenerateAccessToken("user-1", "")

	var got *auth.Principal
	handler := OptionalAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetPrincipal(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/gallery", nil))
	if rr.Code != http.StatusOK || got != nil {
		t.Errorf("expected anonymous pass-through, got %d %+v", rr.Code, got)
	}

	req := httptest.NewRequest(http.MethodGet, "/gallery", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if got == nil || got.UserID != "user-1" {
		t.Errorf("expected principal, got %+v", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/gallery", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for an invalid token, got %d", rr.Code)
	}
}
