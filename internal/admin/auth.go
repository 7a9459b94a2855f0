package admin

import (
	"context"
	"net/http"
)

// AccessKeyHeader lets API clients authenticate with the admin password
// instead of a session cookie.
const AccessKeyHeader = "AccessKey"

// ctxKey is a private type for context keys to prevent collisions.
type ctxKey int

const authMethodKey ctxKey = iota // stores string

// AuthMethodFromContext returns how the request authenticated ("session" or
// "access_key"), or "" if it did not pass RequireAdmin.
func AuthMethodFromContext(ctx context.Context) string {
	method, _ := ctx.Value(authMethodKey).(string)
	return method
}

// RequireAdmin is middleware that admits requests with a live admin session
// cookie or a correct AccessKey header. Others get 401.
func (h *Handler) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := ""
		switch {
		case h.IsAdministrator(r):
			method = "session"
		case r.Header.Get(AccessKeyHeader) != "":
			if !h.checkPassword(r.Header.Get(AccessKeyHeader)) {
				h.logger.Warn("invalid access key", "remote_addr", r.RemoteAddr)
				WriteError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid access key")
				return
			}
			method = "access_key"
		default:
			WriteErrorWithHint(w, http.StatusUnauthorized, ErrCodeInvalidCredentials,
				"Authentication required",
				"Log in via POST /admin/login or send the admin password in the AccessKey header")
			return
		}

		ctx := context.WithValue(r.Context(), authMethodKey, method)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
