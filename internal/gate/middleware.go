package gate

import (
	"context"
	"net/http"

	"github.com/sipico/preview-gate/internal/metrics"
)

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const decisionKey ctxKey = iota // stores *Decision

// DecisionFromContext retrieves the gate decision for the request.
// Returns nil if the request did not pass through the gate.
func DecisionFromContext(ctx context.Context) *Decision {
	if v := ctx.Value(decisionKey); v != nil {
		if d, ok := v.(*Decision); ok {
			return d
		}
	}
	return nil
}

// BannerFromContext retrieves the banner descriptor for the request, if any.
func BannerFromContext(ctx context.Context) *Banner {
	if d := DecisionFromContext(ctx); d != nil {
		return d.Banner
	}
	return nil
}

// WithDecision adds a gate decision to the context.
func WithDecision(ctx context.Context, d *Decision) context.Context {
	return context.WithValue(ctx, decisionKey, d)
}

// Middleware returns Chi-compatible middleware enforcing the gate.
// Allowed requests continue with the Decision in their context.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := g.Decide(r)
		if err != nil {
			// Fail closed: without the grant set nothing can be authorized.
			g.logger.Error("failed to load grants", "error", err, "path", r.URL.Path)
			metrics.RecordDecision("error")
			w.Header().Set("Cache-Control", "no-store")
			http.Error(w, "Preview service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}

		metrics.RecordDecision(d.Reason.String())

		if d.Cookie != nil {
			http.SetCookie(w, d.Cookie)
		}

		if !d.Allowed {
			g.logger.Debug("request blocked", "reason", d.Reason.String(), "resource", string(d.Resource), "source", d.Source.String())
			w.Header().Set("Cache-Control", "no-store")
			http.Error(w, d.Reason.Message(), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithDecision(r.Context(), d)))
	})
}
