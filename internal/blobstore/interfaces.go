// Package blobstore defines the blob-tier collaborator: a persistent
// object repository keyed by path, with per-entry user metadata and
// prefix listing. Implementations back either a real object store
// (internal/blobstore/s3) or the local filesystem
// (internal/blobstore/filesystem).
package blobstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Load/Meta when the key does not exist.
var ErrNotFound = errors.New("blobstore: key not found")

// EntryType classifies a listing entry.
type EntryType int

const (
	// EntryBlob is a leaf object.
	EntryBlob EntryType = iota
	// EntryFolder is a common-prefix grouping, not a stored object.
	EntryFolder
)

// ObjectMeta describes a stored object without its body.
type ObjectMeta struct {
	// UserMetadata holds caller-supplied metadata (e.g. created_at/updated_at).
	UserMetadata map[string]string

	// ContentEncoding is the stored content-encoding tag ("" or "gzip").
	ContentEncoding string

	// CreatedAt is the object's own creation time, as reported by the backend.
	CreatedAt time.Time

	// LastModified is the object's own last-modified time.
	LastModified time.Time

	// Size is the object's size in bytes on the wire (possibly compressed).
	Size int64
}

// Entry is one result row of a List call.
type Entry struct {
	// Key is the full key (for EntryBlob) or prefix (for EntryFolder).
	Key  string
	Type EntryType
	Meta ObjectMeta
}

// Page is one page of a List call.
type Page struct {
	Entries       []Entry
	NextPageToken string
}

// Backend is the blob-store collaborator.
type Backend interface {
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Load retrieves an object's body and metadata. Returns ErrNotFound
	// if key does not exist.
	Load(ctx context.Context, key string) ([]byte, ObjectMeta, error)

	// Meta retrieves an object's metadata without its body. Returns
	// ErrNotFound if key does not exist.
	Meta(ctx context.Context, key string) (ObjectMeta, error)

	// Store writes body to key with the given content type, content
	// encoding ("" for none), and user metadata, creating or replacing
	// the object.
	Store(ctx context.Context, key, contentType, contentEncoding string, userMeta map[string]string, body []byte) error

	// Delete removes key. It does not return ErrNotFound for a
	// already-absent key; deletion is idempotent.
	Delete(ctx context.Context, key string) error

	// List returns up to limit entries whose key starts with prefix,
	// grouping keys that share a "/"-delimited sub-path into folder
	// entries, starting after pageToken (empty for the first page).
	List(ctx context.Context, prefix, pageToken string, limit int) (Page, error)
}

// IsNotFound reports whether err represents a missing object.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
