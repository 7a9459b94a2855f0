package gate

import (
	"net/http"
	"time"

	"github.com/sipico/preview-gate/internal/grant"
	"github.com/sipico/preview-gate/internal/session"
)

// User-facing block messages. Neither reveals anything about other tokens.
const (
	MessageTokenRequired = "This content requires a valid preview token. Please use your provided link."
	MessageWrongResource = "This token is not valid for this page."
)

// Reason explains a Decision.
type Reason int

const (
	// ReasonPublic means no live grant protects the resource.
	ReasonPublic Reason = iota
	// ReasonGranted means a valid token covers the resource.
	ReasonGranted
	// ReasonBypass means the request skipped the gate (control plane or administrator).
	ReasonBypass
	// ReasonTokenRequired means the resource is protected and no valid token was presented.
	ReasonTokenRequired
	// ReasonWrongResource means a live token was presented that does not cover the resource.
	ReasonWrongResource
)

// String returns the string representation of the reason
func (r Reason) String() string {
	switch r {
	case ReasonPublic:
		return "public"
	case ReasonGranted:
		return "granted"
	case ReasonBypass:
		return "bypass"
	case ReasonTokenRequired:
		return "token_required"
	case ReasonWrongResource:
		return "wrong_resource"
	default:
		return "unknown"
	}
}

// Message returns the user-facing text for a blocking reason, or "" if the
// reason allows the request.
func (r Reason) Message() string {
	switch r {
	case ReasonTokenRequired:
		return MessageTokenRequired
	case ReasonWrongResource:
		return MessageWrongResource
	default:
		return ""
	}
}

// Banner describes the preview indicator the rendering layer should show.
type Banner struct {
	ClientName string
	ExpiresAt  time.Time
}

// Decision is the terminal state of the gate for one request.
type Decision struct {
	Allowed  bool
	Reason   Reason
	Resource grant.ResourceID

	// Source is where the presented token came from.
	Source session.Source

	// Outcome is the policy verdict, set only when a token was verified.
	Outcome grant.Outcome

	// Grant is the authorizing grant when Reason is ReasonGranted.
	Grant *grant.Grant

	// Cookie is the single session directive for the response, if any.
	Cookie *http.Cookie

	// Banner is set when the grant asks for a visible preview indicator.
	Banner *Banner

	// Reaped is true when an expired grant was deleted during this request.
	Reaped bool
}
