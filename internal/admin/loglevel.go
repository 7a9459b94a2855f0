package admin

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// SetLogLevelRequest is the request body for POST /admin/api/loglevel
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// HandleSetLogLevel changes runtime log level
// POST /admin/api/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON body")
		return
	}

	level, ok := ParseLevel(req.Level)
	if !ok {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"Invalid log level", "Use one of: debug, info, warn, error")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", level.String())

	writeJSON(w, http.StatusOK, map[string]string{"level": strings.ToLower(level.String())})
}
