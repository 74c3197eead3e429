package session

import (
	"context"
	"time"
)

// Store abstracts session persistence so sessions can live in memory
// (default), in an encrypted local database, or in an external Redis.
//
// Implementations must be safe for concurrent use. Concurrent operations on
// the same handle resolve to one of the documented outcomes, never to a
// partially written record.
type Store interface {
	// Create stores a new record under rec.Handle. ErrHandleExists if the
	// handle is already live.
	Create(ctx context.Context, rec Record) error

	// Get retrieves a live record. A record past its deadline is treated
	// as absent and removed as a side effect, so callers never observe an
	// expired record as live.
	Get(ctx context.Context, handle string) (Record, error)

	// Touch extends the record's deadline and returns the updated record.
	// ErrNotFound if the session is gone — a refresh racing a logout
	// resolves to exactly one of those outcomes.
	Touch(ctx context.Context, handle string, expiresAt time.Time) (Record, error)

	// Delete removes a record. Deleting an absent handle is not an error;
	// a double logout is a benign race.
	Delete(ctx context.Context, handle string) error
}
