package rescache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/rescache/internal/lock"
	"github.com/prn-tf/rescache/internal/metrics"
	"github.com/prn-tf/rescache/internal/sharedcache"
)

// scheduler periodically pulls due keys out of the shared cache's sync
// queue and reconciles each to blob storage. Each tick pops its due keys
// off the queue; a failure in any step is logged and the key is requeued
// at the current time for retry on the next tick;
// the sweep is safe under concurrent client activity because every
// mutation of the same key contends for the same per-key lock.
type scheduler struct {
	service  *Service
	store    sharedcache.Store
	period   time.Duration
	batch    int
	queueKey string
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

func newScheduler(service *Service, store sharedcache.Store, period time.Duration, batch int, queueKey string, m *metrics.Metrics, logger zerolog.Logger) *scheduler {
	return &scheduler{
		service:  service,
		store:    store,
		period:   period,
		batch:    batch,
		queueKey: queueKey,
		logger:   logger.With().Str("component", "rescache.scheduler").Logger(),
		metrics:  m,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the periodic sweep on its own goroutine.
func (sc *scheduler) Start() {
	sc.mu.Lock()
	if sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = true
	sc.mu.Unlock()

	go sc.runLoop()
}

// Stop cancels the periodic timer and waits for any in-flight tick to
// finish.
func (sc *scheduler) Stop() {
	sc.mu.Lock()
	if !sc.running {
		sc.mu.Unlock()
		return
	}
	sc.running = false
	sc.mu.Unlock()

	close(sc.stopChan)
	<-sc.doneChan
}

func (sc *scheduler) runLoop() {
	defer close(sc.doneChan)

	ticker := time.NewTicker(sc.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sc.tick()
		case <-sc.stopChan:
			return
		}
	}
}

// tick runs one sweep: pop due keys and reconcile each.
func (sc *scheduler) tick() {
	ctx := context.Background()

	if sc.metrics != nil {
		sc.metrics.SyncTicks.Inc()
	}

	due, err := sc.store.QueuePopDue(ctx, sc.queueKey, float64(time.Now().UnixMilli()), sc.batch)
	if err != nil {
		sc.logger.Error().Err(err).Msg("failed to read sync queue")
		if sc.metrics != nil {
			sc.metrics.SyncErrors.Inc()
		}
		return
	}

	for _, key := range due {
		sc.syncOne(ctx, key)
	}

	if sc.metrics != nil {
		sc.metrics.SyncKeysTotal.Add(float64(len(due)))
		sc.metrics.SyncLastRun.SetToCurrentTime()
	}
}

// syncOne reconciles a single cache key to blob storage.
func (sc *scheduler) syncOne(ctx context.Context, key string) {
	handle, err := sc.service.locks.TryLock(ctx, lock.Keys.Resource(key))
	if err != nil {
		sc.logger.Error().Err(err).Str("key", key).Msg("sync: lock attempt failed")
		sc.requeue(ctx, key)
		return
	}
	if handle == nil {
		// Another actor owns this key right now. QueuePopDue already
		// removed it from the queue, so requeue it for the next tick
		// rather than letting the entry disappear.
		sc.requeue(ctx, key)
		return
	}
	defer handle.Release(ctx)

	cached, hit, err := sc.service.cache.get(ctx, key, false)
	if err != nil {
		sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to read cache hash")
		sc.requeue(ctx, key)
		return
	}
	if !hit || cached.Synced {
		// Missing or already synced: nothing to reconcile. Opportunistically
		// refresh the TTL if none is set yet, and drop the queue entry.
		if hit {
			hasTTL, err := sc.service.cache.store.HasTTL(ctx, key)
			if err != nil {
				sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to check TTL")
			} else if !hasTTL {
				if err := sc.service.cache.store.Expire(ctx, key, sc.service.cfg.CacheExpiration); err != nil {
					sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to refresh TTL")
				}
			}
		}
		if err := sc.store.QueueRemove(ctx, sc.queueKey, key); err != nil {
			sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to dequeue")
		}
		return
	}

	blobKeyForCacheKey := blobKeyFromCacheKey(key)

	if cached.Exists {
		withBody, hit, err := sc.service.cache.get(ctx, key, true)
		if err != nil || !hit {
			sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to re-read cache hash with body")
			sc.requeue(ctx, key)
			return
		}
		if err := sc.service.blob.put(ctx, blobKeyForCacheKey, withBody.Body, withBody.CreatedAt, withBody.UpdatedAt); err != nil {
			sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to write blob")
			sc.requeue(ctx, key)
			return
		}
	} else {
		if err := sc.service.blob.delete(ctx, blobKeyForCacheKey); err != nil {
			sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to delete blob")
			sc.requeue(ctx, key)
			return
		}
	}

	if err := sc.service.cache.markSynced(ctx, key); err != nil {
		sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to mark synced")
		sc.requeue(ctx, key)
	}
}

// requeue re-adds key at the current time so the next tick retries it.
func (sc *scheduler) requeue(ctx context.Context, key string) {
	if err := sc.store.QueueAdd(ctx, sc.queueKey, key, float64(time.Now().UnixMilli())); err != nil {
		sc.logger.Error().Err(err).Str("key", key).Msg("sync: failed to requeue")
	}
}
