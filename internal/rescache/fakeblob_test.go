package rescache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prn-tf/rescache/internal/blobstore"
)

// fakeBlobBackend is an in-memory blobstore.Backend test double, used in
// place of the filesystem/S3 backends so rescache's unit tests exercise
// the blob tier's logic without any I/O.
type fakeBlobBackend struct {
	mu      sync.Mutex
	objects map[string]fakeObject
}

type fakeObject struct {
	body            []byte
	contentType     string
	contentEncoding string
	userMetadata    map[string]string
	modTime         time.Time
}

func newFakeBlobBackend() *fakeBlobBackend {
	return &fakeBlobBackend{objects: make(map[string]fakeObject)}
}

func (f *fakeBlobBackend) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBlobBackend) Load(_ context.Context, key string) ([]byte, blobstore.ObjectMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return nil, blobstore.ObjectMeta{}, blobstore.ErrNotFound
	}
	return obj.body, f.metaFor(obj), nil
}

func (f *fakeBlobBackend) Meta(_ context.Context, key string) (blobstore.ObjectMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return blobstore.ObjectMeta{}, blobstore.ErrNotFound
	}
	return f.metaFor(obj), nil
}

func (f *fakeBlobBackend) metaFor(obj fakeObject) blobstore.ObjectMeta {
	return blobstore.ObjectMeta{
		UserMetadata:    obj.userMetadata,
		ContentEncoding: obj.contentEncoding,
		CreatedAt:       obj.modTime,
		LastModified:    obj.modTime,
		Size:            int64(len(obj.body)),
	}
}

func (f *fakeBlobBackend) Store(_ context.Context, key, contentType, contentEncoding string, userMeta map[string]string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{body: body, contentType: contentType, contentEncoding: contentEncoding, userMetadata: userMeta, modTime: time.Now()}
	return nil
}

func (f *fakeBlobBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobBackend) List(_ context.Context, prefix, pageToken string, limit int) (blobstore.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix = strings.TrimSuffix(prefix, "/")
	seenFolders := map[string]bool{}
	var names []string
	folders := map[string]bool{}

	for key := range f.objects {
		rest := key
		if prefix != "" {
			if !strings.HasPrefix(key, prefix+"/") {
				continue
			}
			rest = strings.TrimPrefix(key, prefix+"/")
		}
		if idx := strings.Index(rest, "/"); idx >= 0 {
			folder := rest[:idx]
			if !seenFolders[folder] {
				seenFolders[folder] = true
				folders[folder] = true
				names = append(names, folder)
			}
			continue
		}
		names = append(names, rest)
	}
	sort.Strings(names)

	started := pageToken == ""
	var out []blobstore.Entry
	nextToken := ""
	lastName := ""
	for _, name := range names {
		if !started {
			if name == pageToken {
				started = true
			}
			continue
		}
		if limit > 0 && len(out) >= limit {
			nextToken = lastName
			break
		}
		lastName = name

		childKey := name
		if prefix != "" {
			childKey = prefix + "/" + name
		}

		if folders[name] {
			out = append(out, blobstore.Entry{Key: childKey + "/", Type: blobstore.EntryFolder})
			continue
		}

		obj := f.objects[childKey]
		out = append(out, blobstore.Entry{Key: childKey, Type: blobstore.EntryBlob, Meta: f.metaFor(obj)})
	}

	return blobstore.Page{Entries: out, NextPageToken: nextToken}, nil
}

var _ blobstore.Backend = (*fakeBlobBackend)(nil)
