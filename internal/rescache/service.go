package rescache

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/rescache/internal/blobstore"
	"github.com/prn-tf/rescache/internal/domain"
	"github.com/prn-tf/rescache/internal/lock"
	"github.com/prn-tf/rescache/internal/metrics"
	"github.com/prn-tf/rescache/internal/sharedcache"
)

// Config holds the tuning options for a Service. All are required except
// QueueKey, which has a default.
type Config struct {
	// MaxSize rejects resource bodies exceeding this many bytes.
	MaxSize int64

	// SyncPeriod is the interval of the background sweep.
	SyncPeriod time.Duration

	// SyncDelay is the per-key debounce before a mutation becomes
	// eligible for sync.
	SyncDelay time.Duration

	// SyncBatch is the maximum number of keys reconciled per tick.
	SyncBatch int

	// CacheExpiration is the TTL applied to synced cache hashes.
	CacheExpiration time.Duration

	// CompressionMinSize is the minimum body size at which gzip is applied.
	CompressionMinSize int64

	// QueueKey names the shared-cache sorted set used as the sync queue.
	// Defaults to "resource:queue" when empty, so existing callers that
	// don't set it keep today's behavior.
	QueueKey string
}

// Service is the public resource-cache surface: getMetadata, getResource,
// putResource, deleteResource, backed by a blob tier and a cache tier
// under per-key locking, with a background scheduler reconciling the two.
type Service struct {
	blob    *blobTier
	cache   *cacheTier
	locks   *lock.Service
	logger  zerolog.Logger
	cfg     Config
	metrics *metrics.Metrics

	scheduler *scheduler
}

// NewService constructs a Service and starts its background scheduler.
// Callers must call Close when done. m may be nil to disable metrics.
func NewService(backend blobstore.Backend, store sharedcache.Store, locks *lock.Service, cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if cfg.QueueKey == "" {
		cfg.QueueKey = queueKey
	}
	s := &Service{
		blob:    newBlobTier(backend, cfg.CompressionMinSize),
		cache:   newCacheTier(store, cfg.CacheExpiration, cfg.SyncDelay, cfg.QueueKey),
		locks:   locks,
		logger:  logger.With().Str("component", "rescache").Logger(),
		cfg:     cfg,
		metrics: m,
	}
	s.scheduler = newScheduler(s, store, cfg.SyncPeriod, cfg.SyncBatch, cfg.QueueKey, m, logger)
	s.scheduler.Start()
	return s
}

// Close cancels the periodic sync timer. In-flight work is allowed to
// complete.
func (s *Service) Close() {
	s.scheduler.Stop()
}

// GetMetadata returns item metadata for a non-folder descriptor, or
// folder metadata (one page of children) for a folder descriptor.
// Returns (nil, nil, nil) when the resource does not exist, or for a
// non-root folder with no children.
func (s *Service) GetMetadata(ctx context.Context, d domain.ResourceDescriptor, token string, limit int) (*domain.ResourceItemMetadata, *domain.ResourceFolderMetadata, error) {
	start := time.Now()
	item, folder, err := s.getMetadata(ctx, d, token, limit)
	s.observe("get_metadata", start, err)
	return item, folder, err
}

func (s *Service) getMetadata(ctx context.Context, d domain.ResourceDescriptor, token string, limit int) (*domain.ResourceItemMetadata, *domain.ResourceFolderMetadata, error) {
	if d.IsFolder() {
		meta, err := s.getFolderMetadata(ctx, d, token, limit)
		return nil, meta, err
	}

	key := cacheKey(d)

	cached, hit, err := s.cache.get(ctx, key, false)
	if err != nil {
		return nil, nil, err
	}
	if hit {
		if !cached.Exists {
			return nil, nil, nil
		}
		return &domain.ResourceItemMetadata{Descriptor: d, CreatedAt: cached.CreatedAt, UpdatedAt: cached.UpdatedAt}, nil, nil
	}

	blobResult, err := s.blob.get(ctx, blobKey(d), false)
	if err != nil {
		return nil, nil, err
	}
	if !blobResult.Exists {
		return nil, nil, nil
	}

	return &domain.ResourceItemMetadata{Descriptor: d, CreatedAt: blobResult.CreatedAt, UpdatedAt: blobResult.UpdatedAt}, nil, nil
}

func (s *Service) getFolderMetadata(ctx context.Context, d domain.ResourceDescriptor, token string, limit int) (*domain.ResourceFolderMetadata, error) {
	prefix := blobKey(d)
	page, err := s.blob.list(ctx, prefix, token, limit)
	if err != nil {
		return nil, err
	}

	if len(page.Entries) == 0 && !d.IsRootFolder() {
		return nil, nil
	}

	children := make([]domain.FolderChild, 0, len(page.Entries))
	for _, entry := range page.Entries {
		if entry.Type == blobstore.EntryFolder {
			childPath := strings.TrimSuffix(entry.Key, "/")
			childDescriptor := domain.NewChildFolderDescriptor(d, path.Base(childPath))
			children = append(children, domain.FolderChild{
				Folder: &domain.ResourceFolderChildMetadata{Descriptor: childDescriptor},
			})
			continue
		}

		childPath := fromBlobKey(entry.Key)
		childDescriptor := domain.NewChildItemDescriptor(d, path.Base(childPath))
		childResult := resultFromMeta(entry.Meta, "")
		children = append(children, domain.FolderChild{
			Item: &domain.ResourceItemMetadata{Descriptor: childDescriptor, CreatedAt: childResult.CreatedAt, UpdatedAt: childResult.UpdatedAt},
		})
	}

	return &domain.ResourceFolderMetadata{Descriptor: d, Children: children, NextToken: page.NextPageToken}, nil
}

// GetResource performs a double-checked populate: a cache hit returns
// immediately; a miss acquires the per-key lock, re-checks the cache,
// and on a second miss loads from blob and populates the cache.
func (s *Service) GetResource(ctx context.Context, d domain.ResourceDescriptor) (*string, error) {
	start := time.Now()
	body, err := s.getResource(ctx, d)
	s.observe("get_resource", start, err)
	return body, err
}

func (s *Service) getResource(ctx context.Context, d domain.ResourceDescriptor) (*string, error) {
	key := cacheKey(d)

	cached, hit, err := s.cache.get(ctx, key, true)
	if err != nil {
		return nil, err
	}
	if hit {
		s.recordCacheHit("get_resource")
		if !cached.Exists {
			return nil, nil
		}
		body := cached.Body
		return &body, nil
	}
	s.recordCacheMiss("get_resource")

	handle, err := s.locks.Lock(ctx, lock.Keys.Resource(key))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", key, err)
	}
	defer handle.Release(ctx)

	cached, hit, err = s.cache.get(ctx, key, true)
	if err != nil {
		return nil, err
	}
	if hit {
		if !cached.Exists {
			return nil, nil
		}
		body := cached.Body
		return &body, nil
	}

	blobResult, err := s.blob.get(ctx, blobKey(d), true)
	if err != nil {
		return nil, err
	}

	if err := s.cache.put(ctx, key, blobResult); err != nil {
		return nil, err
	}

	if !blobResult.Exists {
		return nil, nil
	}
	body := blobResult.Body
	return &body, nil
}

// PutResource writes body under the per-key lock, absorbing the write
// into the cache tier and, for a brand-new resource, synchronously
// creating a zero-byte blob placeholder so directory listings see it
// immediately.
func (s *Service) PutResource(ctx context.Context, d domain.ResourceDescriptor, body string) (*domain.ResourceItemMetadata, error) {
	start := time.Now()
	meta, err := s.putResource(ctx, d, body)
	s.observe("put_resource", start, err)
	return meta, err
}

func (s *Service) putResource(ctx context.Context, d domain.ResourceDescriptor, body string) (*domain.ResourceItemMetadata, error) {
	if int64(len(body)) > s.cfg.MaxSize {
		return nil, domain.NewDomainError(domain.ErrBodyTooLarge, fmt.Sprintf("%d bytes", len(body)), d.AbsoluteFilePath())
	}

	key := cacheKey(d)

	handle, err := s.locks.Lock(ctx, lock.Keys.Resource(key))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for %s: %w", key, err)
	}
	defer handle.Release(ctx)

	existing, hit, err := s.cache.get(ctx, key, false)
	if err != nil {
		return nil, err
	}
	if !hit {
		existing, err = s.blob.get(ctx, blobKey(d), false)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	createdAt := now
	wasNew := !existing.Exists
	if existing.Exists {
		createdAt = existing.CreatedAt
	}

	result := Result{
		Body:      body,
		CreatedAt: createdAt,
		UpdatedAt: now,
		Synced:    false,
		Exists:    true,
	}

	if err := s.cache.put(ctx, key, result); err != nil {
		return nil, err
	}

	if wasNew {
		if err := s.blob.put(ctx, blobKey(d), "", createdAt, now); err != nil {
			return nil, err
		}
	}

	return &domain.ResourceItemMetadata{Descriptor: d, CreatedAt: createdAt, UpdatedAt: now}, nil
}

// DeleteResource writes a tombstone and synchronously deletes the blob
// object under the per-key lock. Returns false if the resource did not
// exist. If the synchronous blob delete or the final mark-synced step
// fails, the queue entry this wrote survives and the background
// scheduler retries the blob delete.
func (s *Service) DeleteResource(ctx context.Context, d domain.ResourceDescriptor) (bool, error) {
	start := time.Now()
	deleted, err := s.deleteResource(ctx, d)
	s.observe("delete_resource", start, err)
	return deleted, err
}

func (s *Service) deleteResource(ctx context.Context, d domain.ResourceDescriptor) (bool, error) {
	key := cacheKey(d)

	handle, err := s.locks.Lock(ctx, lock.Keys.Resource(key))
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock for %s: %w", key, err)
	}
	defer handle.Release(ctx)

	existing, hit, err := s.cache.get(ctx, key, false)
	if err != nil {
		return false, err
	}

	var existed bool
	if hit {
		existed = existing.Exists
	} else {
		existed, err = s.blob.exists(ctx, blobKey(d))
		if err != nil {
			return false, err
		}
	}

	if !existed {
		return false, nil
	}

	if err := s.cache.put(ctx, key, absentResult(false)); err != nil {
		return false, err
	}

	if err := s.blob.delete(ctx, blobKey(d)); err != nil {
		return false, err
	}

	if err := s.cache.markSynced(ctx, key); err != nil {
		return false, err
	}

	return true, nil
}

func (s *Service) observe(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ResourceOps.WithLabelValues(operation).Inc()
	s.metrics.OpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.OpErrors.WithLabelValues(operation).Inc()
	}
}

func (s *Service) recordCacheHit(operation string) {
	if s.metrics != nil {
		s.metrics.CacheHits.WithLabelValues(operation).Inc()
	}
}

func (s *Service) recordCacheMiss(operation string) {
	if s.metrics != nil {
		s.metrics.CacheMisses.WithLabelValues(operation).Inc()
	}
}
