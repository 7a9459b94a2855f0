// Package admin provides the administration surface of the gate: login
// sessions, the grant management API, CSV export, health checks and runtime
// log level control.
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sipico/preview-gate/internal/issuer"
)

// Common errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNoPassword   = errors.New("admin password is not configured")
)

// Pinger reports whether the grant store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Handler.
type Options struct {
	// Password is the admin secret. It is hashed with bcrypt at construction
	// and the plaintext is not retained.
	Password string

	// BcryptCost overrides bcrypt.DefaultCost (tests use bcrypt.MinCost).
	BcryptCost int

	// SessionTTL is the admin session lifetime. Default 24h.
	SessionTTL time.Duration

	// IsSecure reports whether a request arrived over TLS, for the cookie
	// Secure attribute. Default: r.TLS != nil.
	IsSecure func(r *http.Request) bool

	LogLevel *slog.LevelVar
	Logger   *slog.Logger
}

// Handler provides admin endpoints
type Handler struct {
	issuer       *issuer.Service
	store        Pinger
	passwordHash []byte
	sessions     *SessionStore
	isSecure     func(r *http.Request) bool
	logger       *slog.Logger
	logLevel     *slog.LevelVar
}

// NewHandler creates an admin handler managing grants through svc and
// reporting readiness of store.
func NewHandler(svc *issuer.Service, store Pinger, opts Options) (*Handler, error) {
	if opts.Password == "" {
		return nil, ErrNoPassword
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}

	h := &Handler{
		issuer:       svc,
		store:        store,
		passwordHash: hash,
		sessions:     NewSessionStore(opts.SessionTTL),
		isSecure:     opts.IsSecure,
		logger:       opts.Logger,
		logLevel:     opts.LogLevel,
	}
	if h.isSecure == nil {
		h.isSecure = func(r *http.Request) bool { return r.TLS != nil }
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.logLevel == nil {
		h.logLevel = new(slog.LevelVar)
	}
	return h, nil
}

// Sessions exposes the session store, e.g. for periodic cleanup.
func (h *Handler) Sessions() *SessionStore {
	return h.sessions
}

// checkPassword compares password against the configured secret.
func (h *Handler) checkPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(h.passwordHash, []byte(password)) == nil
}
