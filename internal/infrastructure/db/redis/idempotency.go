package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/commissionhub/commission-api/internal/core/domain"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	pendingTTL            = 2 * time.Minute
	pendingMarker         = "pending"
)

// IdempotencyStore remembers which work a client key produced.
// Key format: idem:<scope>:<key>
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore wraps client. A non-positive ttl selects the default.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Reserve claims key for a new request. It returns the work id when the key
// already completed and domain.ErrIdempotencyInFlight while another request
// holds it.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key string) (string, error) {
	k := s.key(scope, key)
	ok, err := s.client.SetNX(ctx, k, pendingMarker, pendingTTL).Result()
	if err != nil {
		return "", fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return "", nil
	}

	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		ok, err = s.client.SetNX(ctx, k, pendingMarker, pendingTTL).Result()
		if err != nil {
			return "", fmt.Errorf("idempotency reserve: %w", err)
		}
		if ok {
			return "", nil
		}
		return "", domain.ErrIdempotencyInFlight
	}
	if err != nil {
		return "", fmt.Errorf("idempotency lookup: %w", err)
	}
	if val == pendingMarker {
		return "", domain.ErrIdempotencyInFlight
	}
	return val, nil
}

// Complete binds key to workID for the configured retention.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, workID string) error {
	if err := s.client.Set(ctx, s.key(scope, key), workID, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency complete: %w", err)
	}
	return nil
}

// Release drops a pending reservation so the client may retry.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, s.key(scope, key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) key(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}
