package storage

import "errors"

// Error taxonomy shared by every backend. Backends wrap driver errors with one
// of these so callers can branch with errors.Is without importing a driver.
var (
	// ErrConnectionUnavailable means the store could not be reached (dial, ping,
	// or a dropped connection mid-run).
	ErrConnectionUnavailable = errors.New("storage: connection unavailable")

	// ErrSchemaMismatch means the target table is missing or shares no columns
	// with the record set being written.
	ErrSchemaMismatch = errors.New("storage: schema mismatch")

	// ErrConstraintViolation means a uniqueness constraint rejected a write.
	ErrConstraintViolation = errors.New("storage: constraint violation")
)
