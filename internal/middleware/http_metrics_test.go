package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		"/photos":                "/photos",
		"/gallery":               "/gallery",
		"/photos/abc-123":        "/photos/{id}",
		"/photos/abc-123/":       "other",
		"/photos/abc/visibility": "/photos/{id}/visibility",
		"/photos/abc/unknown":    "other",
		"/blobs/alice/u_a.jpg":   "/blobs/{key}",
		"/wp-admin/setup.php":    "other",
		"/folders":               "/folders",
	}
	for path, want := range tests {
		if got := normalizePath(path); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestHTTPMetrics(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		status      int
		wantPath    string
		wantMetrics bool
	}{
		{"list", http.MethodGet, "/photos", "", http.StatusOK, "/photos", true},
		{"upload", http.MethodPost, "/photos", "payload", http.StatusCreated, "/photos", true},
		{"detail", http.MethodGet, "/photos/42", "", http.StatusNotFound, "/photos/{id}", true},
		{"health excluded", http.MethodGet, "/health", "", http.StatusOK, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := NewMetrics()
			reg := prometheus.NewRegistry()
			if err := metrics.Register(reg); err != nil {
				t.Fatalf("Register() failed: %v", err)
			}

			handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("ok"))
			}))
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			families, err := reg.Gather()
			if err != nil {
				t.Fatalf("Gather() failed: %v", err)
			}
			var total float64
			for _, mf := range families {
				if mf.GetName() != MetricHTTPRequestsTotal {
					continue
				}
				for _, m := range mf.GetMetric() {
					labels := map[string]string{}
					for _, lp := range m.GetLabel() {
						labels[lp.GetName()] = lp.GetValue()
					}
					if labels["path"] != tt.wantPath || labels["method"] != tt.method {
						t.Errorf("unexpected labels %v", labels)
					}
					total += m.GetCounter().GetValue()
				}
			}
			if tt.wantMetrics && total != 1 {
				t.Errorf("expected 1 request recorded, got %v", total)
			}
			if !tt.wantMetrics && total != 0 {
				t.Errorf("expected no metrics for %s, got %v", tt.path, total)
			}
		})
	}
}
