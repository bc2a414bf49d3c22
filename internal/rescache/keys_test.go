package rescache

import (
	"testing"

	"github.com/prn-tf/rescache/internal/domain"
)

func TestBlobKey(t *testing.T) {
	item := domain.NewItemDescriptor("widget", "a/b/c")
	if got := blobKey(item); got != "a/b/c.json" {
		t.Fatalf("expected 'a/b/c.json', got %q", got)
	}

	folder := domain.NewFolderDescriptor("widget", "a/b")
	if got := blobKey(folder); got != "a/b/" {
		t.Fatalf("expected 'a/b/', got %q", got)
	}

	root := domain.NewRootFolderDescriptor("widget")
	if got := blobKey(root); got != "" {
		t.Fatalf("expected the root folder's prefix to remain empty, got %q", got)
	}
}

func TestCacheKey(t *testing.T) {
	item := domain.NewItemDescriptor("Widget", "a/b/c")
	if got := cacheKey(item); got != "widget:a/b/c" {
		t.Fatalf("expected 'widget:a/b/c', got %q", got)
	}
}

func TestBlobKeyFromCacheKey(t *testing.T) {
	if got := blobKeyFromCacheKey("widget:a/b/c"); got != "a/b/c.json" {
		t.Fatalf("expected 'a/b/c.json', got %q", got)
	}
	if got := blobKeyFromCacheKey("no-colon"); got != "no-colon.json" {
		t.Fatalf("expected 'no-colon.json', got %q", got)
	}
}

func TestFromBlobKey(t *testing.T) {
	if got := fromBlobKey("a/b/c.json"); got != "a/b/c" {
		t.Fatalf("expected 'a/b/c', got %q", got)
	}
}
