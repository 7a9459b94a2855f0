package admin

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/preview-gate/internal/testutil/mockstore"
)

func newTestServer(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	h := newTestHandler(t, mockstore.New())
	root := chi.NewRouter()
	root.Mount("/admin", h.NewRouter())
	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)
	return h, srv
}

func TestRouter_RequiresAuth(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/admin/api/grants"},
		{http.MethodPost, "/admin/api/grants"},
		{http.MethodGet, "/admin/api/grants/export.csv"},
		{http.MethodDelete, "/admin/api/grants/abc"},
		{http.MethodPost, "/admin/api/loglevel"},
	}

	for _, rt := range routes {
		req, err := http.NewRequest(rt.method, srv.URL+rt.path, nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", rt.method, rt.path)
	}
}

func TestRouter_AccessKeyFlow(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	do := func(method, path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set(AccessKeyHeader, testPassword)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := do(http.MethodPost, "/admin/api/grants", `{"client_name":"Acme","resource":"/42","duration":{"days":1}}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(http.MethodGet, "/admin/api/grants", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(http.MethodGet, "/admin/api/grants/export.csv", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestRouter_SessionFlow(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}

	resp, err := client.PostForm(srv.URL+"/admin/login", map[string][]string{"password": {testPassword}})
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionCookieName {
			session = c
		}
	}
	require.NotNil(t, session)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/admin/api/grants", nil)
	require.NoError(t, err)
	req.AddCookie(session)
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodPost, srv.URL+"/admin/logout", nil)
	require.NoError(t, err)
	req.AddCookie(session)
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/admin/api/grants", nil)
	require.NoError(t, err)
	req.AddCookie(session)
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
