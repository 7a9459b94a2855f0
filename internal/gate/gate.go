// Package gate decides, per inbound request, whether a protected resource may
// be served, and reaps expired grants it discovers on the way.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sipico/preview-gate/internal/grant"
	"github.com/sipico/preview-gate/internal/metrics"
	"github.com/sipico/preview-gate/internal/session"
	"github.com/sipico/preview-gate/internal/storage"
)

// Store is the grant persistence the gate needs.
type Store interface {
	Load(ctx context.Context) (grant.Set, error)
	Save(ctx context.Context, grants grant.Set) error
}

// ResourceFunc derives the resource identity of a request.
type ResourceFunc func(r *http.Request) grant.ResourceID

// BypassFunc reports whether a request skips the gate entirely.
type BypassFunc func(r *http.Request) bool

// Options configures a Gate. Zero values get defaults.
type Options struct {
	Binder   session.Binder
	Resource ResourceFunc
	Bypass   BypassFunc
	Now      func() time.Time
	Logger   *slog.Logger

	// ReapRetries is how many times a failed lazy-reap save is retried
	// within the request. Default 2.
	ReapRetries uint64
	// ReapRetryInterval is the pause between reap retries. Default 50ms.
	ReapRetryInterval time.Duration
}

// Gate is the per-request authorization interceptor.
type Gate struct {
	store         Store
	binder        session.Binder
	resource      ResourceFunc
	bypass        BypassFunc
	now           func() time.Time
	logger        *slog.Logger
	reapRetries   uint64
	reapRetryWait time.Duration
}

// New creates a Gate reading grants from store.
func New(store Store, opts Options) *Gate {
	g := &Gate{
		store:         store,
		binder:        opts.Binder,
		resource:      opts.Resource,
		bypass:        opts.Bypass,
		now:           opts.Now,
		logger:        opts.Logger,
		reapRetries:   opts.ReapRetries,
		reapRetryWait: opts.ReapRetryInterval,
	}
	if g.resource == nil {
		g.resource = PathResource
	}
	if g.bypass == nil {
		g.bypass = func(*http.Request) bool { return false }
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.reapRetries == 0 {
		g.reapRetries = 2
	}
	if g.reapRetryWait == 0 {
		g.reapRetryWait = 50 * time.Millisecond
	}
	return g
}

// PathResource identifies a resource by its normalized URL path.
func PathResource(r *http.Request) grant.ResourceID {
	return grant.NormalizeResource(r.URL.Path)
}

// PathPrefixBypass skips the gate for requests under any of prefixes.
// A prefix matches itself and anything below it ("/admin" matches
// "/admin" and "/admin/x" but not "/administrivia").
func PathPrefixBypass(prefixes ...string) BypassFunc {
	return func(r *http.Request) bool {
		p := r.URL.Path
		for _, prefix := range prefixes {
			if p == prefix || strings.HasPrefix(p, strings.TrimSuffix(prefix, "/")+"/") {
				return true
			}
		}
		return false
	}
}

// AssetBypass skips the gate for static assets: requests under any of
// prefixes, or whose final path segment has one of extensions (given without
// the dot, matched case-insensitively). Pages stay gated; the files they
// pull in do not.
func AssetBypass(prefixes, extensions []string) BypassFunc {
	underPrefix := PathPrefixBypass(prefixes...)
	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return func(r *http.Request) bool {
		if len(prefixes) > 0 && underPrefix(r) {
			return true
		}
		ext := strings.TrimPrefix(path.Ext(r.URL.Path), ".")
		return ext != "" && exts[strings.ToLower(ext)]
	}
}

// AnyBypass combines bypass checks; the request bypasses if any matches.
func AnyBypass(checks ...BypassFunc) BypassFunc {
	return func(r *http.Request) bool {
		for _, check := range checks {
			if check != nil && check(r) {
				return true
			}
		}
		return false
	}
}

// Decide evaluates r. It returns an error only when the grant set cannot be
// loaded; a blocked request is a normal Decision.
func (g *Gate) Decide(r *http.Request) (*Decision, error) {
	if g.bypass(r) {
		return &Decision{Allowed: true, Reason: ReasonBypass}, nil
	}

	ctx := r.Context()
	resource := g.resource(r)
	secure := g.binder.IsSecure(r)
	now := g.now().UTC()

	grants, err := g.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	presented := g.binder.FromRequest(r)
	d := &Decision{Resource: resource, Source: presented.Source}

	if presented.Empty() {
		if presented.Source != session.SourceNone {
			d.Cookie = g.binder.Clear(secure)
		}
		return protect(d, grants, now), nil
	}

	verdict := grant.Verify(presented.Token, resource, grants, now)
	d.Outcome = verdict.Outcome

	switch verdict.Outcome {
	case grant.Valid:
		d.Allowed = true
		d.Reason = ReasonGranted
		d.Grant = verdict.Grant
		if presented.Source == session.SourceURL {
			d.Cookie = g.binder.Bind(presented.Token, verdict.Grant.ExpiresAt, secure)
		}
		if verdict.Grant.ShowBanner {
			d.Banner = &Banner{ClientName: verdict.Grant.ClientName, ExpiresAt: verdict.Grant.ExpiresAt}
		}
		return d, nil

	case grant.ValidButWrongResource:
		d.Reason = ReasonWrongResource
		return d, nil

	case grant.ExpiredAndRemoved:
		grants = grants.Without(presented.Token)
		d.Reaped = g.reap(ctx, presented.Token)
		d.Cookie = g.binder.Clear(secure)
		return protect(d, grants, now), nil

	default:
		d.Cookie = g.binder.Clear(secure)
		return protect(d, grants, now), nil
	}
}

// protect finishes a decision for a request without a usable token.
func protect(d *Decision, grants grant.Set, now time.Time) *Decision {
	if grant.IsResourceProtected(d.Resource, grants, now) {
		d.Allowed = false
		d.Reason = ReasonTokenRequired
		return d
	}
	d.Allowed = true
	d.Reason = ReasonPublic
	return d
}

// reap deletes an expired grant from the store. Each attempt re-reads the set
// so that grants issued since the request started are not overwritten.
// Failure is non-fatal: the next request that presents the token reaps again.
func (g *Gate) reap(ctx context.Context, token string) bool {
	op := func() error {
		current, err := g.store.Load(ctx)
		if err != nil {
			if errors.Is(err, storage.ErrCorrupt) {
				return backoff.Permanent(err)
			}
			return err
		}
		if _, ok := current[token]; !ok {
			// Another request or an admin already removed it.
			return nil
		}
		return g.store.Save(ctx, current.Without(token))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.reapRetryWait), g.reapRetries),
		ctx,
	)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		g.logger.Warn("retrying expired grant removal", "error", err, "wait", wait)
	})
	if err != nil {
		g.logger.Error("failed to remove expired grant", "error", err)
		metrics.RecordReap("failed")
		return false
	}

	g.logger.Info("expired grant removed")
	metrics.RecordReap("ok")
	return true
}
