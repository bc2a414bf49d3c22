package rescache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/rescache/internal/domain"
	"github.com/prn-tf/rescache/internal/lock"
	"github.com/prn-tf/rescache/internal/sharedcache/localcache"
)

func newTestService(t *testing.T) (*Service, *fakeBlobBackend, *localcache.Store) {
	t.Helper()
	backend := newFakeBlobBackend()
	store := localcache.New()
	t.Cleanup(store.Stop)

	locks := lock.NewService(lock.NewMemoryLocker())
	svc := NewService(backend, store, locks, Config{
		MaxSize:            1024 * 1024,
		SyncPeriod:         time.Hour,
		SyncDelay:          0,
		SyncBatch:          100,
		CacheExpiration:    time.Minute,
		CompressionMinSize: 1024,
	}, nil, zerolog.Nop())
	t.Cleanup(svc.Close)

	return svc, backend, store
}

func TestCustomQueueKeyIsHonored(t *testing.T) {
	backend := newFakeBlobBackend()
	store := localcache.New()
	t.Cleanup(store.Stop)
	locks := lock.NewService(lock.NewMemoryLocker())

	svc := NewService(backend, store, locks, Config{
		MaxSize:            1024 * 1024,
		SyncPeriod:         time.Hour,
		SyncBatch:          100,
		CacheExpiration:    time.Minute,
		CompressionMinSize: 1024,
		QueueKey:           "custom:queue",
	}, nil, zerolog.Nop())
	t.Cleanup(svc.Close)

	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "a")
	if _, err := svc.PutResource(ctx, d, "hello"); err != nil {
		t.Fatalf("PutResource: %v", err)
	}

	due, err := store.QueuePopDue(ctx, "custom:queue", float64(time.Now().UnixMilli()), 10)
	if err != nil {
		t.Fatalf("QueuePopDue: %v", err)
	}
	if len(due) != 1 || due[0] != cacheKey(d) {
		t.Fatalf("expected the put to land on the configured queue, got %v", due)
	}

	due, _ = store.QueuePopDue(ctx, queueKey, float64(time.Now().UnixMilli()), 10)
	if len(due) != 0 {
		t.Fatalf("expected nothing on the default queue when QueueKey is overridden, got %v", due)
	}
}

func TestPutThenGetResource(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "a/b")

	meta, err := svc.PutResource(ctx, d, "hello world")
	require.NoError(t, err)
	require.False(t, meta.CreatedAt.IsZero())
	require.False(t, meta.UpdatedAt.IsZero())

	body, err := svc.GetResource(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, body)
	require.Equal(t, "hello world", *body)
}

func TestGetResourceMissingReturnsNil(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "nope")

	body, err := svc.GetResource(ctx, d)
	require.NoError(t, err)
	require.Nil(t, body)
}

func TestGetResourcePopulatesFromBlobOnColdMiss(t *testing.T) {
	svc, backend, _ := newTestService(t)
	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "cold")

	// Seed the blob tier directly, bypassing the cache, to simulate a
	// resource written by a previous process instance.
	require.NoError(t, svc.blob.put(ctx, blobKey(d), "from blob", time.Now(), time.Now()))
	_ = backend

	body, err := svc.GetResource(ctx, d)
	require.NoError(t, err)
	require.NotNil(t, body)
	require.Equal(t, "from blob", *body)

	cached, hit, err := svc.cache.get(ctx, cacheKey(d), true)
	require.NoError(t, err)
	require.True(t, hit, "expected cache to be populated after cold read")
	require.True(t, cached.Synced, "expected cold-read populate to write back synced=true")
}

func TestPutResourceCreatesBlobPlaceholderForNewKey(t *testing.T) {
	svc, backend, _ := newTestService(t)
	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "new")

	_, err := svc.PutResource(ctx, d, "body")
	require.NoError(t, err)

	exists, err := backend.Exists(ctx, blobKey(d))
	require.NoError(t, err)
	require.True(t, exists, "expected a synchronous blob placeholder for a brand-new key")
}

func TestPutResourcePreservesCreatedAtAcrossUpdates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "a")

	first, err := svc.PutResource(ctx, d, "v1")
	require.NoError(t, err)

	time.Sleep(2 * time.Millisecond)

	second, err := svc.PutResource(ctx, d, "v2")
	require.NoError(t, err)

	require.True(t, second.CreatedAt.Equal(first.CreatedAt), "expected CreatedAt to be preserved")
	require.True(t, second.UpdatedAt.After(first.UpdatedAt), "expected UpdatedAt to advance")
}

func TestPutResourceRejectsOversizedBody(t *testing.T) {
	backend := newFakeBlobBackend()
	store := localcache.New()
	defer store.Stop()
	locks := lock.NewService(lock.NewMemoryLocker())
	svc := NewService(backend, store, locks, Config{
		MaxSize:            4,
		SyncPeriod:         time.Hour,
		SyncBatch:          10,
		CacheExpiration:    time.Minute,
		CompressionMinSize: 1024,
	}, nil, zerolog.Nop())
	defer svc.Close()

	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "a")

	_, err := svc.PutResource(ctx, d, "way too long")
	require.Error(t, err)
}

func TestDeleteResource(t *testing.T) {
	svc, backend, _ := newTestService(t)
	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "a")

	_, err := svc.PutResource(ctx, d, "x")
	require.NoError(t, err)

	deleted, err := svc.DeleteResource(ctx, d)
	require.NoError(t, err)
	require.True(t, deleted, "expected delete to report true for an existing resource")

	body, err := svc.GetResource(ctx, d)
	require.NoError(t, err)
	require.Nil(t, body)

	exists, err := backend.Exists(ctx, blobKey(d))
	require.NoError(t, err)
	require.False(t, exists, "expected blob to be synchronously deleted")
}

func TestDeleteResourceMissingReturnsFalse(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	d := domain.NewItemDescriptor("widget", "nope")

	deleted, err := svc.DeleteResource(ctx, d)
	require.NoError(t, err)
	require.False(t, deleted, "expected delete of a missing resource to report false")
}

func TestGetFolderMetadataListsChildren(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.PutResource(ctx, domain.NewItemDescriptor("widget", "docs/a"), "1")
	require.NoError(t, err)
	_, err = svc.PutResource(ctx, domain.NewItemDescriptor("widget", "docs/b"), "2")
	require.NoError(t, err)

	root := domain.NewRootFolderDescriptor(domain.ResourceType("widget"))
	_, folder, err := svc.GetMetadata(ctx, root, "", 0)
	require.NoError(t, err)
	require.NotNil(t, folder, "expected folder metadata for root")
	require.Len(t, folder.Children, 1, "expected a single 'docs' folder child")
	require.NotNil(t, folder.Children[0].Folder, "expected the child to be a folder entry")
}

func TestGetFolderMetadataItemChildrenCarryStoredTimestamps(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	before := time.Now().Add(-time.Second).Truncate(time.Millisecond)
	meta, err := svc.PutResource(ctx, domain.NewItemDescriptor("widget", "docs/a"), "1")
	require.NoError(t, err)
	after := time.Now().Add(time.Second).Truncate(time.Millisecond)

	docs := domain.NewFolderDescriptor(domain.ResourceType("widget"), "docs")
	_, folder, err := svc.GetMetadata(ctx, docs, "", 0)
	require.NoError(t, err)
	require.NotNil(t, folder)
	require.Len(t, folder.Children, 1)
	require.NotNil(t, folder.Children[0].Item, "expected an item child")

	item := folder.Children[0].Item
	require.True(t, item.CreatedAt.UnixMilli() == meta.CreatedAt.UnixMilli(),
		"expected the listed item's CreatedAt to match the stored user-metadata timestamp, got %v want %v", item.CreatedAt, meta.CreatedAt)
	require.True(t, !item.CreatedAt.Before(before) && !item.CreatedAt.After(after),
		"expected CreatedAt to fall within the put window, got %v", item.CreatedAt)
}
