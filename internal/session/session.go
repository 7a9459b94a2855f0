// Package session binds a verified preview token to the browser with an
// expiring cookie, so the token need not repeat in every URL.
package session

import (
	"net/http"
	"strings"
	"time"
)

const (
	// CookieName is the cookie carrying the preview token.
	CookieName = "preview_token"

	// QueryParam is the URL query parameter carrying the preview token.
	QueryParam = "token"
)

// Source tells where a presented token came from.
type Source int

const (
	// SourceNone means neither a query parameter nor a cookie was present.
	SourceNone Source = iota
	// SourceURL means the token came from the query string.
	SourceURL
	// SourceCookie means the token came from the session cookie.
	SourceCookie
)

// String returns the string representation of the source
func (s Source) String() string {
	switch s {
	case SourceURL:
		return "url"
	case SourceCookie:
		return "cookie"
	default:
		return "none"
	}
}

// Presented is the token a request carries and where it came from.
// Token may be empty even when Source is not SourceNone (e.g. "?token=").
type Presented struct {
	Token  string
	Source Source
}

// Empty reports whether no usable token was presented.
func (p Presented) Empty() bool {
	return p.Token == ""
}

// Resolve picks the presented token. A query parameter that is present wins
// over the cookie even when it is empty, so "?token=" drops a session.
func Resolve(urlToken string, urlPresent bool, cookieToken string, cookiePresent bool) Presented {
	switch {
	case urlPresent:
		return Presented{Token: strings.TrimSpace(urlToken), Source: SourceURL}
	case cookiePresent:
		return Presented{Token: strings.TrimSpace(cookieToken), Source: SourceCookie}
	default:
		return Presented{Source: SourceNone}
	}
}

// Binder issues and reads session cookies.
type Binder struct {
	// TrustForwardedProto makes X-Forwarded-Proto: https count as a secure
	// channel. Enable only behind a proxy that sets the header.
	TrustForwardedProto bool
}

// FromRequest resolves the token presented by r.
func (b Binder) FromRequest(r *http.Request) Presented {
	query := r.URL.Query()
	_, urlPresent := query[QueryParam]
	urlToken := query.Get(QueryParam)

	var cookieToken string
	cookie, err := r.Cookie(CookieName)
	cookiePresent := err == nil
	if cookiePresent {
		cookieToken = cookie.Value
	}

	return Resolve(urlToken, urlPresent, cookieToken, cookiePresent)
}

// IsSecure reports whether r arrived over a secure channel.
func (b Binder) IsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if b.TrustForwardedProto {
		return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
	}
	return false
}

// Bind returns the cookie persisting token until expiresAt.
func (b Binder) Bind(token string, expiresAt time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt.UTC(),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Clear returns an already-expired cookie that deletes the session.
func (b Binder) Clear(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}
