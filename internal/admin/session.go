package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

// SessionCookieName is the cookie carrying the admin session ID.
const SessionCookieName = "admin_session"

// Session represents an admin session
type Session struct {
	ID        string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore manages admin sessions in memory. Sessions do not survive a
// restart.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
	now      func() time.Time
}

// NewSessionStore creates a session store
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 24 * time.Hour
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
	}
}

// CreateSession generates a new session
func (s *SessionStore) CreateSession(ctx context.Context) (*Session, error) {
	// 32 bytes = 64 hex chars
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:        hex.EncodeToString(b),
		CreatedAt: now,
		ExpiresAt: now.Add(s.timeout),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a live session by ID. Expired sessions are removed.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*Session, bool) {
	if id == "" {
		return nil, false
	}

	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if s.now().After(session.ExpiresAt) {
		s.DeleteSession(ctx, id)
		return nil, false
	}

	return session, true
}

// DeleteSession removes a session
func (s *SessionStore) DeleteSession(ctx context.Context, id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Cleanup removes expired sessions and returns how many were dropped.
func (s *SessionStore) Cleanup(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if now.After(session.ExpiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *SessionStore) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(ctx)
		}
	}
}

// HandleLogin processes admin login
// POST /admin/login
// Form data: password=<value>
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid form data")
		return
	}

	if !h.checkPassword(r.PostFormValue("password")) {
		h.logger.Warn("failed login attempt", "remote_addr", r.RemoteAddr)
		WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid password")
		return
	}

	session, err := h.sessions.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("failed to create session", "error", err)
		WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to create session")
		return
	}

	// Path "/" so the session also lets administrators bypass the gate on site pages.
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		MaxAge:   int(h.sessions.timeout.Seconds()),
		HttpOnly: true,
		Secure:   h.isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("admin login successful", "remote_addr", r.RemoteAddr)

	http.Redirect(w, r, "/admin/api/grants", http.StatusSeeOther)
}

// HandleLogout invalidates the session
// POST /admin/logout
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		h.sessions.DeleteSession(r.Context(), cookie.Value)
		h.logger.Info("admin logout")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.isSecure(r),
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}

// IsAdministrator reports whether r carries a live admin session. The gate
// uses it to let logged-in administrators see protected pages.
func (h *Handler) IsAdministrator(r *http.Request) bool {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return false
	}
	_, ok := h.sessions.GetSession(r.Context(), cookie.Value)
	return ok
}
