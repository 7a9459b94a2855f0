package proxy

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sipico/preview-gate/internal/logging"
	"github.com/sipico/preview-gate/internal/middleware"
)

// LoggingTransport wraps an http.RoundTripper and logs upstream exchanges at
// debug level. Headers and the query string are masked; bodies are not read.
type LoggingTransport struct {
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper interface
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	log := middleware.Logger(ctx, t.Logger)
	debug := log.Enabled(ctx, slog.LevelDebug)

	if debug {
		log.Debug("upstream request",
			"method", req.Method,
			"url", maskedURL(req),
			"headers", maskHeaders(req.Header),
		)
	}

	start := time.Now()
	resp, err := t.transport().RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		log.Debug("upstream request failed",
			"method", req.Method,
			"url", maskedURL(req),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	if debug {
		log.Debug("upstream response",
			"status_code", resp.StatusCode,
			"duration_ms", duration.Milliseconds(),
			"headers", maskHeaders(resp.Header),
		)
	}
	return resp, nil
}

// transport returns the underlying transport or DefaultTransport if nil
func (t *LoggingTransport) transport() http.RoundTripper {
	if t.Transport != nil {
		return t.Transport
	}
	return http.DefaultTransport
}

func maskedURL(req *http.Request) string {
	u := *req.URL
	if u.RawQuery != "" {
		u.RawQuery = logging.MaskQuery(u.RawQuery)
	}
	return u.String()
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = logging.MaskHeader(k, strings.Join(v, ", "))
	}
	return out
}
