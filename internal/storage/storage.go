// Package storage persists the grant set. The whole set lives in a single
// named record that is read and overwritten wholesale.
package storage

import (
	"context"

	"github.com/sipico/preview-gate/internal/grant"
)

// RecordName is the name of the record holding the grant set.
const RecordName = "preview_grants"

// TokenStore loads and replaces the full grant set.
// Concurrent writers are last-write-wins.
type TokenStore interface {
	// Load returns the current grant set. A missing record yields an empty,
	// non-nil set.
	Load(ctx context.Context) (grant.Set, error)

	// Save replaces the stored grant set with grants.
	Save(ctx context.Context, grants grant.Set) error
}

// Backend is a TokenStore with lifecycle and health operations.
type Backend interface {
	TokenStore
	Ping(ctx context.Context) error
	Close() error
}
