// Package sharedcache defines the distributed cache collaborator: a hash
// map per resource key, plus a single time-scored queue used to debounce
// background synchronization. Implementations back either Redis
// (internal/sharedcache/rediscache) or an in-process map
// (internal/sharedcache/localcache) for single-node deployments.
package sharedcache

import (
	"context"
	"time"
)

// Store is the shared-cache collaborator.
type Store interface {
	// HashGetAll returns every field of the hash at key. A non-existent
	// key returns an empty, nil-error map.
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// HashSet writes fields into the hash at key, creating it if absent,
	// merging with any fields already present.
	HashSet(ctx context.Context, key string, fields map[string]string) error

	// HashDelete removes key entirely.
	HashDelete(ctx context.Context, key string) error

	// Expire sets key's TTL. A non-positive ttl is a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// HasTTL reports whether key currently carries an expiry. A
	// non-existent key reports false.
	HasTTL(ctx context.Context, key string) (bool, error)

	// Persist removes any TTL on key, so it survives until explicitly deleted.
	Persist(ctx context.Context, key string) error

	// QueueAdd schedules member in the sync queue at score (a Unix
	// timestamp), replacing any existing score for the same member.
	QueueAdd(ctx context.Context, queueKey, member string, score float64) error

	// QueueRemove removes member from the sync queue if present.
	QueueRemove(ctx context.Context, queueKey, member string) error

	// QueuePopDue returns up to limit members whose score is <= maxScore,
	// removing them from the queue atomically so no two callers observe
	// the same member.
	QueuePopDue(ctx context.Context, queueKey string, maxScore float64, limit int) ([]string, error)
}
