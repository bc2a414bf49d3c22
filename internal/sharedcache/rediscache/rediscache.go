// Package rediscache provides a sharedcache.Store backed by Redis, using
// a hash per resource key and a single sorted set as the sync queue.
package rediscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prn-tf/rescache/internal/sharedcache"
)

// popDueScript atomically reads and removes members scored <= ARGV[1],
// up to ARGV[2] of them, so two callers racing QueuePopDue never observe
// the same member.
var popDueScript = redis.NewScript(`
local members = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
if #members > 0 then
	redis.call("ZREM", KEYS[1], unpack(members))
end
return members
`)

// Store implements sharedcache.Store against a Redis client.
type Store struct {
	client redis.UniversalClient
}

// New creates a new Redis-backed shared-cache store.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// HashGetAll returns every field of the hash at key.
func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return res, nil
}

// HashSet writes fields into the hash at key.
func (s *Store) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}

	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return s.client.HSet(ctx, key, args...).Err()
}

// HashDelete removes key entirely.
func (s *Store) HashDelete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Expire sets key's TTL. A non-positive ttl is a no-op.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

// Persist removes any TTL on key.
func (s *Store) Persist(ctx context.Context, key string) error {
	return s.client.Persist(ctx, key).Err()
}

// HasTTL reports whether key currently carries an expiry.
func (s *Store) HasTTL(ctx context.Context, key string) (bool, error) {
	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, err
	}
	// go-redis reports -1 for "exists, no TTL" and -2 for "missing".
	return ttl > 0, nil
}

// QueueAdd schedules member at score in the sync queue, replacing any
// existing score for the same member.
func (s *Store) QueueAdd(ctx context.Context, queueKey, member string, score float64) error {
	return s.client.ZAdd(ctx, queueKey, redis.Z{Score: score, Member: member}).Err()
}

// QueueRemove removes member from the sync queue.
func (s *Store) QueueRemove(ctx context.Context, queueKey, member string) error {
	return s.client.ZRem(ctx, queueKey, member).Err()
}

// QueuePopDue returns and removes up to limit members scored <= maxScore.
func (s *Store) QueuePopDue(ctx context.Context, queueKey string, maxScore float64, limit int) ([]string, error) {
	res, err := popDueScript.Run(ctx, s.client, []string{queueKey}, maxScore, limit).StringSlice()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	return res, nil
}

// Ensure Store implements sharedcache.Store.
var _ sharedcache.Store = (*Store)(nil)
