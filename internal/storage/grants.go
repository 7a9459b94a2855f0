package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sipico/preview-gate/internal/grant"
)

// Load reads the grant set record.
// Returns an empty set if the record has never been written.
func (s *SQLiteStorage) Load(ctx context.Context) (grant.Set, error) {
	var value string

	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM options WHERE name = ?",
		RecordName).
		Scan(&value)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grant.NewSet(), nil
		}
		return nil, fmt.Errorf("%w: failed to load grants: %w", ErrStorage, err)
	}

	grants, err := decodeSet([]byte(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return grants, nil
}

// Save replaces the grant set record and bumps its revision.
func (s *SQLiteStorage) Save(ctx context.Context, grants grant.Set) error {
	data, err := encodeSet(grants)
	if err != nil {
		return fmt.Errorf("%w: failed to encode grants: %w", ErrStorage, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO options (name, value) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			value = excluded.value,
			revision = options.revision + 1,
			updated_at = CURRENT_TIMESTAMP`,
		RecordName, string(data))

	if err != nil {
		return fmt.Errorf("%w: failed to save grants: %w", ErrStorage, err)
	}

	return nil
}

// Revision returns how many times the grant set has been saved.
// Returns 0 if it has never been saved.
func (s *SQLiteStorage) Revision(ctx context.Context) (int64, error) {
	var rev int64

	err := s.db.QueryRowContext(ctx,
		"SELECT revision FROM options WHERE name = ?",
		RecordName).
		Scan(&rev)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: failed to read revision: %w", ErrStorage, err)
	}

	return rev, nil
}
