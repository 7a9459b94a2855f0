package grant

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	// TokenBytes is the entropy of a minted token.
	TokenBytes = 16

	// MaxTokenAttempts bounds minting retries on collision.
	MaxTokenAttempts = 5
)

// Request holds the admin input for a new grant.
type Request struct {
	ClientName string
	Scope      Scope
	Expiry     ExpirySpec
	ShowBanner bool
}

// Minter issues new grants. The zero value reads from crypto/rand.
type Minter struct {
	// Rand is the entropy source. Nil means crypto/rand.Reader.
	Rand io.Reader
}

// Token returns a random hex token not present in existing.
func (m Minter) Token(existing Set) (string, error) {
	src := m.Rand
	if src == nil {
		src = rand.Reader
	}

	buf := make([]byte, TokenBytes)
	for attempt := 0; attempt < MaxTokenAttempts; attempt++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		token := hex.EncodeToString(buf)
		if _, taken := existing[token]; !taken {
			return token, nil
		}
	}
	return "", ErrTokenExhausted
}

// New validates req and builds a grant with a fresh token. It does not touch
// existing; the caller persists the result.
func (m Minter) New(req Request, existing Set, now time.Time, loc *time.Location) (*Grant, error) {
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		return nil, invalid("client_name", "must not be empty")
	}

	scope := req.Scope
	switch scope.Kind {
	case ScopeSiteWide:
		scope.Resource = ""
	case ScopeSinglePage:
		if strings.TrimSpace(string(scope.Resource)) == "" {
			return nil, invalid("resource", "a page is required unless the grant is site-wide")
		}
		scope.Resource = NormalizeResource(string(scope.Resource))
	default:
		return nil, invalid("scope", "unknown scope kind %d", scope.Kind)
	}

	expiresAt, err := ComputeExpiry(req.Expiry, now, loc)
	if err != nil {
		return nil, err
	}

	token, err := m.Token(existing)
	if err != nil {
		return nil, err
	}

	return &Grant{
		Token:      token,
		ClientName: name,
		Scope:      scope,
		CreatedAt:  now.UTC(),
		ExpiresAt:  expiresAt,
		ShowBanner: req.ShowBanner,
	}, nil
}
