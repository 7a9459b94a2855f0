package metrics

import (
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
)

// numericSegment matches numeric path segments.
var numericSegment = regexp.MustCompile(`/(\d+)`)

// hexToken matches path segments that look like preview tokens.
var hexToken = regexp.MustCompile(`/[0-9a-f]{16,}(/|$)`)

// statusRecorder wraps http.ResponseWriter to capture the status code
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader captures the status code and writes it to the underlying ResponseWriter
func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.statusCode = code
		r.written = true
		r.ResponseWriter.WriteHeader(code)
	}
}

// Write ensures WriteHeader is called before writing body
func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.statusCode = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware returns an HTTP middleware that records Prometheus metrics for each request.
// It tracks:
// - Request count by method, route, and status
// - Request duration (latency)
// - Panics are recorded as 500 status codes
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		startTime := time.Now()

		defer func() {
			duration := time.Since(startTime).Seconds()

			statusCode := recorder.statusCode
			if statusCode == 0 {
				statusCode = http.StatusInternalServerError
			}

			// Site paths are unbounded, so label by route pattern where chi knows it.
			label := routeLabel(r)

			statusStr := http.StatusText(statusCode)
			if statusStr == "" {
				statusStr = "UNKNOWN"
			}

			RecordRequest(r.Method, label, statusStr)
			RecordRequestDuration(r.Method, label, statusStr, duration)

			if err := recover(); err != nil {
				if !recorder.written {
					recorder.statusCode = http.StatusInternalServerError
					recorder.WriteHeader(http.StatusInternalServerError)
				}
			}
		}()

		next.ServeHTTP(recorder, r)
	})
}

// routeLabel returns the chi route pattern for r, falling back to the
// normalized path when the request was not routed by chi.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath takes a request path and returns a normalized version for use as a metric label.
// Examples:
//
//	/123 -> /:id
//	/admin/api/grants/9f86d081884c7d65 -> /admin/api/grants/:token
func normalizePath(path string) string {
	path = hexToken.ReplaceAllString(path, "/:token$1")
	return numericSegment.ReplaceAllString(path, "/:id")
}
