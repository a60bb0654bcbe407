package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// staticRoutes are reported as-is.
var staticRoutes = map[string]bool{
	"/":        true,
	"/photos":  true,
	"/folders": true,
	"/albums":  true,
	"/gallery": true,
	"/map":     true,
	"/catalog": true,
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// normalizePath maps request paths to route patterns so metric labels stay
// bounded, e.g. /photos/123/visibility to /photos/{id}/visibility.
func normalizePath(path string) string {
	if staticRoutes[path] {
		return path
	}

	parts := strings.Split(path, "/")
	switch {
	case strings.HasPrefix(path, "/blobs/"):
		return "/blobs/{key}"
	case len(parts) == 3 && parts[1] == "photos" && parts[2] != "":
		return "/photos/{id}"
	case len(parts) == 4 && parts[1] == "photos" && parts[2] != "" && parts[3] == "visibility":
		return "/photos/{id}/visibility"
	}
	return "other"
}

// metricsResponseWriter wraps http.ResponseWriter to capture status code and response size.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	mrw.wroteHeader = true
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

func (mrw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return mrw.ResponseWriter
}

// HTTPMetrics records duration, request/response sizes and counts of every
// request. Health check endpoints are excluded.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			metrics.httpInFlight.Inc()
			defer metrics.httpInFlight.Dec()

			mrw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			requestSize := r.ContentLength
			if requestSize < 0 {
				requestSize = 0
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
