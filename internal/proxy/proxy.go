// Package proxy forwards requests that passed the gate to the content origin
// and adds the preview banner to HTML pages.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"slices"
	"time"

	"github.com/sipico/preview-gate/internal/gate"
	"github.com/sipico/preview-gate/internal/middleware"
	"github.com/sipico/preview-gate/internal/session"
)

// Options configures a Handler. Zero values get defaults.
type Options struct {
	// Transport overrides http.DefaultTransport for upstream requests.
	Transport http.RoundTripper

	// StripCookies lists cookies never forwarded to the origin.
	// session.CookieName is always included.
	StripCookies []string

	Now    func() time.Time
	Logger *slog.Logger
}

// Handler is a reverse proxy to the content origin.
type Handler struct {
	upstream     *url.URL
	rp           *httputil.ReverseProxy
	stripCookies []string
	now          func() time.Time
	logger       *slog.Logger
}

// New creates a Handler forwarding to upstream.
func New(upstream *url.URL, opts Options) (*Handler, error) {
	if upstream == nil || upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q", upstream)
	}

	h := &Handler{
		upstream:     upstream,
		stripCookies: append([]string{session.CookieName}, opts.StripCookies...),
		now:          opts.Now,
		logger:       opts.Logger,
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	h.rp = &httputil.ReverseProxy{
		Rewrite:        h.rewrite,
		ModifyResponse: h.modifyResponse,
		ErrorHandler:   h.handleError,
		Transport:      &LoggingTransport{Transport: opts.Transport, Logger: h.logger},
	}
	return h, nil
}

// ServeHTTP forwards r to the origin.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.rp.ServeHTTP(w, r)
}

func (h *Handler) rewrite(pr *httputil.ProxyRequest) {
	pr.SetURL(h.upstream)
	pr.SetXForwarded()

	if id := middleware.GetRequestID(pr.In.Context()); id != "" {
		pr.Out.Header.Set(middleware.RequestIDHeader, id)
	}

	stripQueryToken(pr.Out.URL)
	stripCookies(pr.Out, h.stripCookies)

	// The banner is spliced into the body, so the origin must not compress it.
	if gate.BannerFromContext(pr.In.Context()) != nil {
		pr.Out.Header.Del("Accept-Encoding")
	}
}

// stripQueryToken removes the preview token from u so it never reaches the
// origin or its logs.
func stripQueryToken(u *url.URL) {
	q := u.Query()
	if !q.Has(session.QueryParam) {
		return
	}
	q.Del(session.QueryParam)
	u.RawQuery = q.Encode()
}

func stripCookies(r *http.Request, names []string) {
	cookies := r.Cookies()
	kept := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if !slices.Contains(names, c.Name) {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(cookies) {
		return
	}

	r.Header.Del("Cookie")
	for _, c := range kept {
		r.AddCookie(c)
	}
}

func (h *Handler) modifyResponse(resp *http.Response) error {
	d := gate.DecisionFromContext(resp.Request.Context())
	if d == nil || d.Grant == nil {
		return nil
	}

	// Pages served on a token must not be stored by shared caches.
	resp.Header.Set("Cache-Control", "private, no-store")
	resp.Header.Del("Expires")

	if d.Banner != nil {
		return h.injectBanner(resp, *d.Banner)
	}
	return nil
}

func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		// Client went away; nothing to answer.
		return
	}
	middleware.Logger(r.Context(), h.logger).Error("upstream request failed",
		"error", err,
		"path", r.URL.Path,
	)
	http.Error(w, "Bad Gateway", http.StatusBadGateway)
}
