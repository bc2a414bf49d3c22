package rescache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prn-tf/rescache/internal/blobstore"
)

// fieldCreatedAt and fieldUpdatedAt are the blob user-metadata keys
// carrying the resource's timestamps as decimal epoch-millis strings.
const (
	fieldCreatedAt = "created_at"
	fieldUpdatedAt = "updated_at"
)

const contentTypeJSON = "application/json"

// blobTier translates between Result and the blob-store collaborator.
type blobTier struct {
	backend            blobstore.Backend
	compressionMinSize int64
}

func newBlobTier(backend blobstore.Backend, compressionMinSize int64) *blobTier {
	return &blobTier{backend: backend, compressionMinSize: compressionMinSize}
}

// exists reports whether key is present in the blob store.
func (t *blobTier) exists(ctx context.Context, key string) (bool, error) {
	return t.backend.Exists(ctx, key)
}

// get issues a full load when withBody, else a metadata-only meta call.
// A missing object returns the synthetic negative Result with
// Synced=true ("nothing to reconcile").
func (t *blobTier) get(ctx context.Context, key string, withBody bool) (Result, error) {
	if withBody {
		body, meta, err := t.backend.Load(ctx, key)
		if err != nil {
			if blobstore.IsNotFound(err) {
				return absentResult(true), nil
			}
			return Result{}, fmt.Errorf("failed to load blob %s: %w", key, err)
		}

		decoded, err := decompress(body, meta.ContentEncoding)
		if err != nil {
			return Result{}, err
		}

		return resultFromMeta(meta, string(decoded)), nil
	}

	meta, err := t.backend.Meta(ctx, key)
	if err != nil {
		if blobstore.IsNotFound(err) {
			return absentResult(true), nil
		}
		return Result{}, fmt.Errorf("failed to stat blob %s: %w", key, err)
	}

	return resultFromMeta(meta, ""), nil
}

func resultFromMeta(meta blobstore.ObjectMeta, body string) Result {
	createdAt := meta.CreatedAt
	updatedAt := meta.LastModified

	if v, ok := meta.UserMetadata[fieldCreatedAt]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			createdAt = time.UnixMilli(ms)
		}
	}
	if v, ok := meta.UserMetadata[fieldUpdatedAt]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			updatedAt = time.UnixMilli(ms)
		}
	}

	return Result{
		Body:      body,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Synced:    true,
		Exists:    true,
	}
}

// put writes compressed-or-raw body with both timestamps recorded as
// decimal user metadata.
func (t *blobTier) put(ctx context.Context, key string, body string, createdAt, updatedAt time.Time) error {
	stored, encoding, err := compress([]byte(body), t.compressionMinSize)
	if err != nil {
		return err
	}

	userMeta := map[string]string{
		fieldCreatedAt: strconv.FormatInt(createdAt.UnixMilli(), 10),
		fieldUpdatedAt: strconv.FormatInt(updatedAt.UnixMilli(), 10),
	}

	if err := t.backend.Store(ctx, key, contentTypeJSON, encoding, userMeta, stored); err != nil {
		return fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	return nil
}

// delete removes key from the blob store. Deletion is idempotent.
func (t *blobTier) delete(ctx context.Context, key string) error {
	if err := t.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// list returns one page of entries under prefix.
func (t *blobTier) list(ctx context.Context, prefix, pageToken string, limit int) (blobstore.Page, error) {
	page, err := t.backend.List(ctx, prefix, pageToken, limit)
	if err != nil {
		return blobstore.Page{}, fmt.Errorf("failed to list blobs under %s: %w", prefix, err)
	}
	return page, nil
}
