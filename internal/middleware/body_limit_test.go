package middleware

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMaxBodySize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bodySize int
		wantErr  bool
	}{
		{"empty", 0, false},
		{"under limit", 512, false},
		{"at limit", 1024, false},
		{"over limit", 2048, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var readErr error
			var n int
			handler := MaxBodySize(1024)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var data []byte
				data, readErr = io.ReadAll(r.Body)
				n = len(data)
			}))

			req := httptest.NewRequest("POST", "/admin/api/grants", bytes.NewReader(make([]byte, tt.bodySize)))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if tt.wantErr {
				var maxErr *http.MaxBytesError
				if !errors.As(readErr, &maxErr) {
					t.Errorf("expected *http.MaxBytesError, got %v", readErr)
				}
				return
			}
			if readErr != nil {
				t.Errorf("unexpected read error: %v", readErr)
			}
			if n != tt.bodySize {
				t.Errorf("read %d bytes, want %d", n, tt.bodySize)
			}
		})
	}
}

func TestMaxBodySizeNoBody(t *testing.T) {
	t.Parallel()

	handler := MaxBodySize(1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != http.NoBody {
			t.Errorf("body without content should stay http.NoBody")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}
