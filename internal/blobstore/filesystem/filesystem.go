// Package filesystem provides a local-disk blobstore.Backend.
// Objects are stored path-addressed (mirroring their logical key) rather
// than content-addressed, since the resource cache's blob keys are
// resource paths and prefix listing must reflect that hierarchy. A JSON
// sidecar file carries user metadata and content-encoding, which plain
// files have no room for.
package filesystem

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/prn-tf/rescache/internal/blobstore"
)

// shardCount is the number of lock shards guarding concurrent access to
// distinct keys.
const shardCount = 256

// shardedLock provides fine-grained locking based on key, so concurrent
// operations on unrelated keys never contend.
type shardedLock struct {
	locks [shardCount]sync.RWMutex
}

func (sl *shardedLock) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % shardCount)
}

func (sl *shardedLock) Lock(key string)    { sl.locks[sl.shardIndex(key)].Lock() }
func (sl *shardedLock) Unlock(key string)  { sl.locks[sl.shardIndex(key)].Unlock() }
func (sl *shardedLock) RLock(key string)   { sl.locks[sl.shardIndex(key)].RLock() }
func (sl *shardedLock) RUnlock(key string) { sl.locks[sl.shardIndex(key)].RUnlock() }

// sidecar holds the metadata a plain file cannot carry.
type sidecar struct {
	ContentType     string            `json:"content_type"`
	ContentEncoding string            `json:"content_encoding"`
	UserMetadata    map[string]string `json:"user_metadata"`
}

// Config holds configuration for the filesystem blob backend.
type Config struct {
	DataDir string
}

// Backend implements blobstore.Backend using the local filesystem.
type Backend struct {
	dataDir string
	logger  zerolog.Logger
	shards  shardedLock
}

// NewBackend creates a new filesystem blob backend rooted at cfg.DataDir.
func NewBackend(cfg Config, logger zerolog.Logger) (*Backend, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for data dir: %w", err)
	}

	logger.Info().Str("data_dir", dataDir).Msg("filesystem blobstore initialized")

	return &Backend{dataDir: dataDir, logger: logger}, nil
}

func (b *Backend) objectPath(key string) string {
	return filepath.Join(b.dataDir, filepath.FromSlash(key))
}

func (b *Backend) sidecarPath(key string) string {
	return b.objectPath(key) + ".meta.json"
}

// Exists reports whether key is present.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	b.shards.RLock(key)
	defer b.shards.RUnlock(key)

	if _, err := os.Stat(b.objectPath(key)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return true, nil
}

// Load retrieves an object's body and metadata.
func (b *Backend) Load(ctx context.Context, key string) ([]byte, blobstore.ObjectMeta, error) {
	b.shards.RLock(key)
	defer b.shards.RUnlock(key)

	body, err := os.ReadFile(b.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blobstore.ObjectMeta{}, blobstore.ErrNotFound
		}
		return nil, blobstore.ObjectMeta{}, fmt.Errorf("failed to read object: %w", err)
	}

	meta, err := b.readMeta(key)
	if err != nil {
		return nil, blobstore.ObjectMeta{}, err
	}

	return body, meta, nil
}

// Meta retrieves an object's metadata without its body.
func (b *Backend) Meta(ctx context.Context, key string) (blobstore.ObjectMeta, error) {
	b.shards.RLock(key)
	defer b.shards.RUnlock(key)

	if _, err := os.Stat(b.objectPath(key)); err != nil {
		if os.IsNotExist(err) {
			return blobstore.ObjectMeta{}, blobstore.ErrNotFound
		}
		return blobstore.ObjectMeta{}, fmt.Errorf("failed to stat object: %w", err)
	}

	return b.readMeta(key)
}

// readMetaLocked is readMeta under the key's shard lock, for callers like
// List that read metadata for a key they never called Exists/Load for
// first and so haven't already taken the lock themselves. It reports
// os.ErrNotExist (checkable with os.IsNotExist) if the object vanished
// between the caller's directory listing and this call, rather than the
// fmt.Errorf-wrapped error readMeta itself returns on a stat failure.
func (b *Backend) readMetaLocked(key string) (blobstore.ObjectMeta, error) {
	b.shards.RLock(key)
	defer b.shards.RUnlock(key)

	if _, err := os.Stat(b.objectPath(key)); err != nil {
		if os.IsNotExist(err) {
			return blobstore.ObjectMeta{}, err
		}
		return blobstore.ObjectMeta{}, fmt.Errorf("failed to stat object: %w", err)
	}
	return b.readMeta(key)
}

func (b *Backend) readMeta(key string) (blobstore.ObjectMeta, error) {
	info, err := os.Stat(b.objectPath(key))
	if err != nil {
		return blobstore.ObjectMeta{}, fmt.Errorf("failed to stat object: %w", err)
	}

	meta := blobstore.ObjectMeta{
		CreatedAt:    info.ModTime(),
		LastModified: info.ModTime(),
		Size:         info.Size(),
	}

	raw, err := os.ReadFile(b.sidecarPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return meta, nil
		}
		return blobstore.ObjectMeta{}, fmt.Errorf("failed to read sidecar: %w", err)
	}

	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return blobstore.ObjectMeta{}, fmt.Errorf("failed to parse sidecar: %w", err)
	}

	meta.ContentEncoding = sc.ContentEncoding
	meta.UserMetadata = sc.UserMetadata
	if created, ok := sc.UserMetadata["created_at"]; ok {
		if ms, err := strconv.ParseInt(created, 10, 64); err == nil {
			meta.CreatedAt = time.UnixMilli(ms)
		}
	}
	if updated, ok := sc.UserMetadata["updated_at"]; ok {
		if ms, err := strconv.ParseInt(updated, 10, 64); err == nil {
			meta.LastModified = time.UnixMilli(ms)
		}
	}

	return meta, nil
}

// Store writes body to key, creating parent directories as needed. The
// object and its sidecar are each written to a temp file in the target
// directory first, then renamed into place, so a crash mid-write never
// leaves a partially-written object visible to a concurrent Load.
func (b *Backend) Store(ctx context.Context, key, contentType, contentEncoding string, userMeta map[string]string, body []byte) error {
	b.shards.Lock(key)
	defer b.shards.Unlock(key)

	fullPath := b.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	if err := writeFileAtomic(fullPath, body, 0644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}

	sc := sidecar{
		ContentType:     contentType,
		ContentEncoding: contentEncoding,
		UserMetadata:    userMeta,
	}
	raw, err := json.Marshal(sc)
	if err != nil {
		return fmt.Errorf("failed to encode sidecar: %w", err)
	}
	if err := writeFileAtomic(b.sidecarPath(key), raw, 0644); err != nil {
		return fmt.Errorf("failed to write sidecar: %w", err)
	}

	b.logger.Debug().Str("key", key).Int("size", len(body)).Msg("blob stored")
	return nil
}

// writeFileAtomic writes data to a temp file alongside path, then renames
// it into place. The temp file lives in the same directory as path so the
// rename is same-filesystem and therefore atomic.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		return fmt.Errorf("failed to set temp file permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to move file into place: %w", err)
	}

	success = true
	return nil
}

// Delete removes key and its sidecar, then prunes empty parent directories.
func (b *Backend) Delete(ctx context.Context, key string) error {
	b.shards.Lock(key)
	defer b.shards.Unlock(key)

	fullPath := b.objectPath(key)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	if err := os.Remove(b.sidecarPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete sidecar: %w", err)
	}

	b.cleanupEmptyDirs(filepath.Dir(fullPath))

	b.logger.Debug().Str("key", key).Msg("blob deleted")
	return nil
}

func (b *Backend) cleanupEmptyDirs(dir string) {
	for dir != b.dataDir && strings.HasPrefix(dir, b.dataDir) {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

// List returns entries under prefix, grouping immediate sub-directories
// as folder entries and files as blob entries. pageToken and limit
// provide simple in-memory pagination over a lexicographically sorted
// listing; this is adequate for the filesystem backend's intended
// single-node/test use.
func (b *Backend) List(ctx context.Context, prefix, pageToken string, limit int) (blobstore.Page, error) {
	dir := filepath.Join(b.dataDir, filepath.FromSlash(strings.TrimSuffix(prefix, "/")))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return blobstore.Page{}, nil
		}
		return blobstore.Page{}, fmt.Errorf("failed to list directory: %w", err)
	}

	type row struct {
		name   string
		isDir  bool
		isMeta bool
	}
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".meta.json") {
			continue
		}
		rows = append(rows, row{name: name, isDir: e.IsDir()})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	started := pageToken == ""
	var out []blobstore.Entry
	nextToken := ""
	lastName := ""
	for _, r := range rows {
		if !started {
			if r.name == pageToken {
				started = true
			}
			continue
		}
		if limit > 0 && len(out) >= limit {
			nextToken = lastName
			break
		}

		childKey := strings.TrimSuffix(prefix, "/")
		if childKey != "" {
			childKey += "/"
		}
		childKey += r.name

		if r.isDir {
			out = append(out, blobstore.Entry{Key: childKey + "/", Type: blobstore.EntryFolder})
			lastName = r.name
			continue
		}

		meta, err := b.readMetaLocked(childKey)
		if err != nil {
			if os.IsNotExist(err) {
				// Deleted by a concurrent Delete between ReadDir and here;
				// omit it from the page rather than failing the listing.
				continue
			}
			return blobstore.Page{}, err
		}
		out = append(out, blobstore.Entry{Key: childKey, Type: blobstore.EntryBlob, Meta: meta})
		lastName = r.name
	}

	return blobstore.Page{Entries: out, NextPageToken: nextToken}, nil
}

// Ensure Backend implements blobstore.Backend.
var _ blobstore.Backend = (*Backend)(nil)
