package storage

import "errors"

var (
	// ErrStorage wraps every persistence failure. Callers must not assume a
	// save succeeded unless it returned nil.
	ErrStorage = errors.New("storage error")

	// ErrCorrupt is returned when the stored record cannot be decoded.
	ErrCorrupt = errors.New("stored grant record is corrupt")

	// ErrUnknownBackend is returned by Open for an unsupported backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
)
