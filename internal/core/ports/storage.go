package ports

import (
	"context"
	"io"
	"time"
)

// ObjectStorage stores deliverables and hands out time-limited retrieval and
// upload URLs. Failures should wrap domain.ErrStorageUnavailable.
type ObjectStorage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	SignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	SignPut(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Exists reports whether an object was stored under key.
	Exists(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
}

// IdempotencyStore remembers which work a requester's Idempotency-Key produced.
type IdempotencyStore interface {
	// Reserve claims key within scope. When the key already completed, the stored
	// work id is returned. A key still in progress yields domain.ErrIdempotencyInFlight.
	Reserve(ctx context.Context, scope, key string) (workID string, err error)
	Complete(ctx context.Context, scope, key, workID string) error
	Release(ctx context.Context, scope, key string) error
}
