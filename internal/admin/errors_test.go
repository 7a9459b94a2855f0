package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		code     string
		message  string
		hint     string
		wantHint bool
	}{
		{
			name:    "bad request error",
			status:  http.StatusBadRequest,
			code:    ErrCodeInvalidRequest,
			message: "Invalid JSON",
		},
		{
			name:    "storage error",
			status:  http.StatusInternalServerError,
			code:    ErrCodeStorageUnavailable,
			message: "Failed to save grant",
		},
		{
			name:     "with hint",
			status:   http.StatusUnauthorized,
			code:     ErrCodeInvalidCredentials,
			message:  "Authentication required",
			hint:     "Log in first",
			wantHint: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			if tt.hint != "" {
				WriteErrorWithHint(w, tt.status, tt.code, tt.message, tt.hint)
			} else {
				WriteError(w, tt.status, tt.code, tt.message)
			}

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected Content-Type application/json, got %s", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
				t.Errorf("expected Cache-Control no-store, got %s", cc)
			}

			raw := w.Body.String()
			var resp APIError
			if err := json.Unmarshal([]byte(raw), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Error != tt.code || resp.Message != tt.message {
				t.Errorf("unexpected body %+v", resp)
			}
			if strings.Contains(raw, `"hint"`) != tt.wantHint {
				t.Errorf("hint presence mismatch in %s", raw)
			}
			if strings.Contains(raw, `"field"`) {
				t.Errorf("empty field must be omitted: %s", raw)
			}
		})
	}
}
