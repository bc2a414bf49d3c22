// Package domain contains the core business entities for the resource cache.
package domain

import (
	"strings"
	"time"
)

// ResourceType namespaces resources within the shared cache and is used,
// lower-cased, as the prefix of a resource's cache key.
type ResourceType string

// ResourceDescriptor is the opaque handle callers pass into the resource
// cache. It is deliberately minimal: the cache never needs anything about
// a resource beyond its type, its path, and whether it is a folder.
type ResourceDescriptor interface {
	// Type returns the resource's namespace.
	Type() ResourceType

	// AbsoluteFilePath returns the forward-slash path identifying this
	// resource within its type's namespace.
	AbsoluteFilePath() string

	// IsFolder reports whether this descriptor names a folder.
	IsFolder() bool

	// IsRootFolder reports whether this descriptor names the root folder
	// of its type's namespace.
	IsRootFolder() bool
}

// pathDescriptor is the sole implementation of ResourceDescriptor.
type pathDescriptor struct {
	typ      ResourceType
	path     string
	isFolder bool
	isRoot   bool
}

func (d pathDescriptor) Type() ResourceType      { return d.typ }
func (d pathDescriptor) AbsoluteFilePath() string { return d.path }
func (d pathDescriptor) IsFolder() bool           { return d.isFolder }
func (d pathDescriptor) IsRootFolder() bool       { return d.isRoot }

// NewItemDescriptor builds a descriptor for a non-folder resource at path.
func NewItemDescriptor(typ ResourceType, path string) ResourceDescriptor {
	return pathDescriptor{typ: typ, path: path}
}

// NewFolderDescriptor builds a descriptor for a folder resource at path.
func NewFolderDescriptor(typ ResourceType, path string) ResourceDescriptor {
	return pathDescriptor{typ: typ, path: path, isFolder: true}
}

// NewRootFolderDescriptor builds the descriptor for the root folder of typ.
func NewRootFolderDescriptor(typ ResourceType) ResourceDescriptor {
	return pathDescriptor{typ: typ, path: "", isFolder: true, isRoot: true}
}

// NewChildItemDescriptor builds a descriptor for a non-folder child of
// parent named childName. parent must be a folder.
func NewChildItemDescriptor(parent ResourceDescriptor, childName string) ResourceDescriptor {
	return pathDescriptor{
		typ:  parent.Type(),
		path: joinPath(parent.AbsoluteFilePath(), childName),
	}
}

// NewChildFolderDescriptor builds a descriptor for a folder child of
// parent named childName. parent must be a folder.
func NewChildFolderDescriptor(parent ResourceDescriptor, childName string) ResourceDescriptor {
	return pathDescriptor{
		typ:      parent.Type(),
		path:     joinPath(parent.AbsoluteFilePath(), childName),
		isFolder: true,
	}
}

// ValidatePath reports ErrInvalidPath if path is unsafe to use as a
// resource path: empty segments, "." or ".." segments, or a leading "/"
// all indicate the caller's raw wildcard path was not what the
// /{type}/{path...} route shape expects, and could otherwise escape a
// path-addressed blob backend's root once joined onto it.
func ValidatePath(path string) error {
	if strings.HasPrefix(path, "/") {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

func joinPath(parent, child string) string {
	parent = strings.TrimSuffix(parent, "/")
	child = strings.TrimPrefix(child, "/")
	if parent == "" {
		return child
	}
	return parent + "/" + child
}

// ResourceItemMetadata is the externally-visible metadata view of a
// single non-folder resource.
type ResourceItemMetadata struct {
	Descriptor ResourceDescriptor
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// FolderChild is either an item or a folder entry within a folder listing.
// Exactly one of Item or Folder is non-nil.
type FolderChild struct {
	Item   *ResourceItemMetadata
	Folder *ResourceFolderChildMetadata
}

// ResourceFolderChildMetadata names a child folder within a listing
// without recursing into its own children.
type ResourceFolderChildMetadata struct {
	Descriptor ResourceDescriptor
}

// ResourceFolderMetadata is the externally-visible metadata view of a
// folder's immediate children, one page at a time.
type ResourceFolderMetadata struct {
	Descriptor ResourceDescriptor
	Children   []FolderChild
	NextToken  string
}
