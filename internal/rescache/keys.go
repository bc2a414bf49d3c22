package rescache

import (
	"strings"

	"github.com/prn-tf/rescache/internal/domain"
)

// queueKey is the default sync-queue name, used when Config.QueueKey is
// unset; all resource types share one queue, scored by due-at epoch millis.
const queueKey = "resource:queue"

// blobKey maps a descriptor to its blob-store object key. Folders use
// their path, trailing-slashed, as a listing prefix, so a backend like
// S3 that does literal string-prefix matching on keys (not path
// segments) never treats a sibling such as "docs-archive.json" as a
// child of "docs". The root folder's empty path is left as-is. Items
// get a ".json" suffix.
func blobKey(d domain.ResourceDescriptor) string {
	if d.IsFolder() {
		p := d.AbsoluteFilePath()
		if p == "" {
			return p
		}
		return p + "/"
	}
	return d.AbsoluteFilePath() + ".json"
}

// cacheKey maps a descriptor to its shared-cache hash key, namespaced by
// resource type.
func cacheKey(d domain.ResourceDescriptor) string {
	return strings.ToLower(string(d.Type())) + ":" + d.AbsoluteFilePath()
}

// blobKeyFromCacheKey strips a cache key's type namespace and appends
// the item suffix, for use by the scheduler which only has cache keys.
func blobKeyFromCacheKey(c string) string {
	_, path, found := strings.Cut(c, ":")
	if !found {
		path = c
	}
	return path + ".json"
}

// fromBlobKey strips the ".json" suffix a blob key carries for items.
func fromBlobKey(k string) string {
	return strings.TrimSuffix(k, ".json")
}
