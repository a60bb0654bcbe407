package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockHealthChecker is a mock implementation of HealthChecker for testing.
type mockHealthChecker struct {
	err   error
	calls int
}

func (m *mockHealthChecker) HealthCheck(ctx context.Context) error {
	m.calls++
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("expected a deadline")
	}
	return m.err
}

func TestHealth_Success(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{})

	w := httptest.NewRecorder()
	handlers.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}

	var response HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "healthy" || response.Checks["runtime"] != "ok" {
		t.Errorf("unexpected response %+v", response)
	}
	if _, err := time.Parse(time.RFC3339, response.Timestamp); err != nil {
		t.Errorf("timestamp is not valid RFC3339: %v", err)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		checkers   map[string]error
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no dependencies configured",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"metrics": "ok"},
		},
		{
			name:       "all healthy",
			checkers:   map[string]error{"database": nil, "redis": nil, "kafka": nil},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"metrics": "ok", "database": "ok", "redis": "ok", "kafka": "ok"},
		},
		{
			name:       "database down",
			checkers:   map[string]error{"database": errors.New("connection refused"), "redis": nil},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"metrics": "ok", "database": "error", "redis": "ok"},
		},
		{
			name:       "several down",
			checkers:   map[string]error{"redis": errors.New("timeout"), "kafka": errors.New("no brokers")},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"metrics": "ok", "redis": "error", "kafka": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkers := map[string]HealthChecker{}
			mocks := map[string]*mockHealthChecker{}
			for name, err := range tt.checkers {
				m := &mockHealthChecker{err: err}
				mocks[name] = m
				checkers[name] = m
			}
			handlers := NewHealthHandlers(HealthHandlersConfig{Checkers: checkers})

			w := httptest.NewRecorder()
			handlers.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var response HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			wantStatus := "healthy"
			if tt.wantStatus != http.StatusOK {
				wantStatus = "unhealthy"
			}
			if response.Status != wantStatus {
				t.Errorf("expected status %q, got %q", wantStatus, response.Status)
			}
			if len(response.Checks) != len(tt.wantChecks) {
				t.Errorf("expected checks %v, got %v", tt.wantChecks, response.Checks)
			}
			for name, want := range tt.wantChecks {
				if response.Checks[name] != want {
					t.Errorf("check %s: expected %s, got %s", name, want, response.Checks[name])
				}
			}
			for name, m := range mocks {
				if m.calls != 1 {
					t.Errorf("checker %s called %d times", name, m.calls)
				}
			}
		})
	}
}

func TestNewHealthHandlers_SkipsNilCheckers(t *testing.T) {
	handlers := NewHealthHandlers(HealthHandlersConfig{Checkers: map[string]HealthChecker{"redis": nil}})

	w := httptest.NewRecorder()
	handlers.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}
