package store

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by Update when the optimistic write keeps losing
// against concurrent writers after the retry budget is spent.
var ErrConflict = errors.New("store: concurrent update conflict")

// UpdateFunc transforms the current value of a key into its next value.
// It runs inside an optimistic read-modify-write cycle and may be invoked
// more than once, so it must be free of side effects.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is durable, expiring key/value storage for job records and the
// index lists around them (per-user history, per-type dispatch queues).
// Implementations must be safe for concurrent use. Lookups report absence
// with ok=false rather than an error.
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, key string) error

	// Update applies fn to the current value of key and writes the result
	// with the given TTL, retrying on concurrent modification. Returns the
	// written value, or ok=false without calling the write path when the
	// key is absent.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) ([]byte, bool, error)

	// List operations back the dispatch queues (FIFO: append + pop front)
	// and the per-user job history (newest first: prepend + range).
	ListPrepend(ctx context.Context, key string, values ...string) error
	ListAppend(ctx context.Context, key string, values ...string) error
	ListPopFront(ctx context.Context, key string) (string, bool, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ListLen(ctx context.Context, key string) (int64, error)

	// DelayedAdd schedules member to become visible at the given time;
	// PopDue removes and returns every member whose time has arrived.
	// Backs the retry-with-backoff path of the dispatch queues.
	DelayedAdd(ctx context.Context, key, member string, at time.Time) error
	PopDue(ctx context.Context, key string, now time.Time) ([]string, error)

	// IncrWithExpiry atomically increments a counter and refreshes its TTL.
	// Used by the rate limiter, not by the job lifecycle.
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)

	// Scan enumerates keys matching pattern. O(keyspace); maintenance only.
	Scan(ctx context.Context, pattern string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}
