// Package grant models preview grants and the pure policy deciding whether a
// presented token authorizes a resource.
package grant

import (
	"path"
	"strings"
	"time"
)

// ResourceID identifies a protected resource. It is a normalized URL path.
type ResourceID string

// Root is the resource ID of the site's front page.
const Root ResourceID = "/"

// NormalizeResource turns user or request input into a ResourceID.
// "42", "/42" and "/42/" all become "/42"; an empty string becomes Root.
func NormalizeResource(s string) ResourceID {
	s = strings.TrimSpace(s)
	if s == "" {
		return Root
	}
	if !strings.HasPrefix(s, "/") {
		s = "/" + s
	}
	return ResourceID(path.Clean(s))
}

// ScopeKind distinguishes single-page grants from site-wide grants.
type ScopeKind int

const (
	// ScopeSinglePage authorizes exactly one resource.
	ScopeSinglePage ScopeKind = iota
	// ScopeSiteWide authorizes every resource.
	ScopeSiteWide
)

// String returns the string representation of the scope kind
func (k ScopeKind) String() string {
	switch k {
	case ScopeSinglePage:
		return "single_page"
	case ScopeSiteWide:
		return "site_wide"
	default:
		return "unknown"
	}
}

// Scope is what a Grant covers. Resource is only meaningful for ScopeSinglePage.
type Scope struct {
	Kind     ScopeKind
	Resource ResourceID
}

// SinglePage returns a scope covering only id.
func SinglePage(id ResourceID) Scope {
	return Scope{Kind: ScopeSinglePage, Resource: NormalizeResource(string(id))}
}

// SiteWide returns a scope covering every resource.
func SiteWide() Scope {
	return Scope{Kind: ScopeSiteWide}
}

// Covers reports whether the scope authorizes id.
func (s Scope) Covers(id ResourceID) bool {
	if s.Kind == ScopeSiteWide {
		return true
	}
	return s.Resource == id
}

// Grant is one issued preview authorization.
type Grant struct {
	Token      string
	ClientName string
	Scope      Scope
	CreatedAt  time.Time // UTC
	ExpiresAt  time.Time // UTC
	ShowBanner bool
}

// Expired reports whether the grant is no longer usable at now.
// A grant is still valid at the exact instant it expires.
func (g *Grant) Expired(now time.Time) bool {
	return now.UTC().After(g.ExpiresAt)
}

// Set maps tokens to grants. It is the whole persisted grant state.
type Set map[string]*Grant

// NewSet returns an empty, non-nil Set.
func NewSet() Set {
	return make(Set)
}

// Clone returns a shallow copy of the set. Grants are immutable once issued,
// so sharing the pointers is safe.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for token, g := range s {
		out[token] = g
	}
	return out
}

// Without returns a copy of the set with token removed.
// Removing an absent token is not an error.
func (s Set) Without(token string) Set {
	out := s.Clone()
	delete(out, token)
	return out
}

// With returns a copy of the set containing g.
func (s Set) With(g *Grant) Set {
	out := s.Clone()
	out[g.Token] = g
	return out
}
