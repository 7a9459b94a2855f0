package grant

import "time"

// Outcome is the result class of Verify.
type Outcome int

const (
	// NotFoundOrEmpty means the token is empty or unknown.
	NotFoundOrEmpty Outcome = iota
	// Valid means the token is live and covers the resource.
	Valid
	// ExpiredAndRemoved means the token exists but has expired. The caller
	// must delete it from the store.
	ExpiredAndRemoved
	// ValidButWrongResource means the token is live but does not cover the
	// resource. Callers must block rather than treat it as "no token".
	ValidButWrongResource
)

// String returns the string representation of the outcome
func (o Outcome) String() string {
	switch o {
	case NotFoundOrEmpty:
		return "not_found"
	case Valid:
		return "valid"
	case ExpiredAndRemoved:
		return "expired"
	case ValidButWrongResource:
		return "wrong_resource"
	default:
		return "unknown"
	}
}

// Verdict is the outcome of verifying a token. Grant is set for every outcome
// except NotFoundOrEmpty.
type Verdict struct {
	Outcome Outcome
	Grant   *Grant
}

// Verify decides whether token authorizes resource at now.
func Verify(token string, resource ResourceID, grants Set, now time.Time) Verdict {
	if token == "" {
		return Verdict{Outcome: NotFoundOrEmpty}
	}

	g, ok := grants[token]
	if !ok || g == nil {
		return Verdict{Outcome: NotFoundOrEmpty}
	}

	if g.Expired(now) {
		return Verdict{Outcome: ExpiredAndRemoved, Grant: g}
	}

	if !g.Scope.Covers(resource) {
		return Verdict{Outcome: ValidButWrongResource, Grant: g}
	}

	return Verdict{Outcome: Valid, Grant: g}
}

// IsResourceProtected reports whether anonymous access to resource must be
// blocked: true if any live grant is site-wide or targets resource.
// Resources with no live grant remain public.
func IsResourceProtected(resource ResourceID, grants Set, now time.Time) bool {
	for _, g := range grants {
		if g == nil || g.Expired(now) {
			continue
		}
		if g.Scope.Covers(resource) {
			return true
		}
	}
	return false
}
