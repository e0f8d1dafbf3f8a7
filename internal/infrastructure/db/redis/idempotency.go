package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyTTL = 24 * time.Hour
	// pendingTTL bounds how long a crashed request can hold a key.
	pendingTTL = time.Minute

	pendingMarker = "pending"
)

// IdempotencyStore claims Idempotency-Keys per owner and remembers which
// contact each one produced.
// Key format: idem:contacts:<owner_id>:<key>
type IdempotencyStore struct {
	client     *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

// NewIdempotencyStore creates an IdempotencyStore wrapping the given Redis client.
func NewIdempotencyStore(client *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: idempotencyTTL, pendingTTL: pendingTTL}
}

// Reserve claims the key with SET NX. When another request already holds
// it, the recorded contact id is returned, or "" while that request is
// still pending.
func (s *IdempotencyStore) Reserve(ctx context.Context, ownerID, key string) (string, bool, error) {
	k := s.key(ownerID, key)
	ok, err := s.client.SetNX(ctx, k, pendingMarker, s.pendingTTL).Result()
	if err != nil {
		return "", false, fmt.Errorf("idempotency reserve: %w", err)
	}
	if ok {
		return "", true, nil
	}

	id, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; report it as in flight.
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if id == pendingMarker {
		return "", false, nil
	}
	return id, false, nil
}

// Remember records contactID for the key, replacing the pending marker. The
// record expires after the store TTL.
func (s *IdempotencyStore) Remember(ctx context.Context, ownerID, key, contactID string) error {
	if err := s.client.Set(ctx, s.key(ownerID, key), contactID, s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency remember: %w", err)
	}
	return nil
}

// Release drops the key so a retry can claim it again.
func (s *IdempotencyStore) Release(ctx context.Context, ownerID, key string) error {
	if err := s.client.Del(ctx, s.key(ownerID, key)).Err(); err != nil {
		return fmt.Errorf("idempotency release: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) key(ownerID, key string) string {
	return fmt.Sprintf("idem:contacts:%s:%s", ownerID, key)
}
