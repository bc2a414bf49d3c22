package rescache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prn-tf/rescache/internal/domain"
	"github.com/prn-tf/rescache/internal/sharedcache"
)

const (
	fieldBody    = "body"
	fieldCreated = "created_at"
	fieldUpdated = "updated_at"
	fieldSynced  = "synced"
	fieldExists  = "exists"
)

// cacheTier translates between Result and the shared-cache collaborator,
// and manages TTL and sync-queue membership.
type cacheTier struct {
	store           sharedcache.Store
	cacheExpiration time.Duration
	syncDelay       time.Duration
	queueKey        string
}

func newCacheTier(store sharedcache.Store, cacheExpiration, syncDelay time.Duration, queueKey string) *cacheTier {
	return &cacheTier{store: store, cacheExpiration: cacheExpiration, syncDelay: syncDelay, queueKey: queueKey}
}

// get reads either the four metadata fields or all five fields (withBody)
// from the hash at key. An empty hash means the key is not cached, which
// is reported as (Result{}, false, nil).
func (t *cacheTier) get(ctx context.Context, key string, withBody bool) (Result, bool, error) {
	fields, err := t.store.HashGetAll(ctx, key)
	if err != nil {
		return Result{}, false, fmt.Errorf("failed to read cache hash %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Result{}, false, nil
	}

	existsStr, ok := fields[fieldExists]
	if !ok {
		return Result{}, false, domain.NewDomainError(domain.ErrCorruptCacheEntry, "missing exists field", key)
	}
	exists, err := strconv.ParseBool(existsStr)
	if err != nil {
		return Result{}, false, domain.NewDomainError(domain.ErrCorruptCacheEntry, "exists field not boolean", key)
	}

	syncedStr, ok := fields[fieldSynced]
	if !ok {
		return Result{}, false, domain.NewDomainError(domain.ErrCorruptCacheEntry, "missing synced field", key)
	}
	synced, err := strconv.ParseBool(syncedStr)
	if err != nil {
		return Result{}, false, domain.NewDomainError(domain.ErrCorruptCacheEntry, "synced field not boolean", key)
	}

	result := Result{Exists: exists, Synced: synced}

	if exists {
		createdAt, err := parseMillisField(fields, fieldCreated, key)
		if err != nil {
			return Result{}, false, err
		}
		updatedAt, err := parseMillisField(fields, fieldUpdated, key)
		if err != nil {
			return Result{}, false, err
		}
		result.CreatedAt = createdAt
		result.UpdatedAt = updatedAt
	}

	if withBody {
		result.Body = fields[fieldBody]
	}

	return result, true, nil
}

func parseMillisField(fields map[string]string, field, key string) (time.Time, error) {
	raw, ok := fields[field]
	if !ok {
		return time.Time{}, domain.NewDomainError(domain.ErrCorruptCacheEntry, "missing "+field+" field", key)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, domain.NewDomainError(domain.ErrCorruptCacheEntry, field+" field not numeric", key)
	}
	return time.UnixMilli(ms), nil
}

// put writes result's five fields to the hash at key. Queue insertion
// happens before the hash write (queue-before-write): a crash between
// the two leaves a queue entry whose key is still a cache miss, which
// the scheduler treats as a no-op dequeue. result.Synced is only true
// here on GetResource's cold-read populate path (the scheduler uses
// markSynced instead), in which case the key is given a TTL and removed
// from the queue instead of being (re-)enqueued.
func (t *cacheTier) put(ctx context.Context, key string, result Result) error {
	if !result.Synced {
		if err := t.store.QueueAdd(ctx, t.queueKey, key, float64(time.Now().Add(t.syncDelay).UnixMilli())); err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", key, err)
		}
	}

	fields := map[string]string{
		fieldExists: strconv.FormatBool(result.Exists),
		fieldSynced: strconv.FormatBool(result.Synced),
	}
	if result.Exists {
		fields[fieldCreated] = strconv.FormatInt(result.CreatedAt.UnixMilli(), 10)
		fields[fieldUpdated] = strconv.FormatInt(result.UpdatedAt.UnixMilli(), 10)
	}
	fields[fieldBody] = result.Body

	if err := t.store.HashSet(ctx, key, fields); err != nil {
		return fmt.Errorf("failed to write cache hash %s: %w", key, err)
	}

	if result.Synced {
		if err := t.store.Expire(ctx, key, t.cacheExpiration); err != nil {
			return fmt.Errorf("failed to set TTL on %s: %w", key, err)
		}
		if err := t.store.QueueRemove(ctx, t.queueKey, key); err != nil {
			return fmt.Errorf("failed to dequeue %s: %w", key, err)
		}
	} else {
		if err := t.store.Persist(ctx, key); err != nil {
			return fmt.Errorf("failed to clear TTL on %s: %w", key, err)
		}
	}

	return nil
}

// markSynced sets synced=true, applies the TTL, and removes key from the
// queue, without touching the other fields.
func (t *cacheTier) markSynced(ctx context.Context, key string) error {
	if err := t.store.HashSet(ctx, key, map[string]string{fieldSynced: "true"}); err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", key, err)
	}
	if err := t.store.Expire(ctx, key, t.cacheExpiration); err != nil {
		return fmt.Errorf("failed to set TTL on %s: %w", key, err)
	}
	if err := t.store.QueueRemove(ctx, t.queueKey, key); err != nil {
		return fmt.Errorf("failed to dequeue %s: %w", key, err)
	}
	return nil
}
