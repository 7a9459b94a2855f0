package storage

import (
	"context"
	"fmt"
)

// Ping verifies database connectivity with a lightweight query.
//
// This is used by the /readyz endpoint so that readiness checks do not decode
// the whole grant set.
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	var result int
	err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil {
		return fmt.Errorf("%w: database ping failed: %w", ErrStorage, err)
	}

	if result != 1 {
		return fmt.Errorf("%w: database ping returned unexpected result: %d", ErrStorage, result)
	}

	return nil
}
