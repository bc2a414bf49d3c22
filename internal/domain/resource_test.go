package domain

import (
	"errors"
	"testing"
)

func TestNewItemDescriptor(t *testing.T) {
	d := NewItemDescriptor("widget", "a/b")
	if d.Type() != "widget" || d.AbsoluteFilePath() != "a/b" || d.IsFolder() || d.IsRootFolder() {
		t.Fatalf("unexpected descriptor: type=%v path=%v folder=%v root=%v", d.Type(), d.AbsoluteFilePath(), d.IsFolder(), d.IsRootFolder())
	}
}

func TestNewRootFolderDescriptor(t *testing.T) {
	d := NewRootFolderDescriptor("widget")
	if d.AbsoluteFilePath() != "" || !d.IsFolder() || !d.IsRootFolder() {
		t.Fatalf("expected root folder descriptor, got path=%q folder=%v root=%v", d.AbsoluteFilePath(), d.IsFolder(), d.IsRootFolder())
	}
}

func TestNewChildItemDescriptorJoinsPaths(t *testing.T) {
	parent := NewFolderDescriptor("widget", "docs")
	child := NewChildItemDescriptor(parent, "a.json")

	if child.AbsoluteFilePath() != "docs/a.json" {
		t.Fatalf("expected joined path 'docs/a.json', got %q", child.AbsoluteFilePath())
	}
	if child.Type() != "widget" {
		t.Fatalf("expected child to inherit parent type, got %q", child.Type())
	}
	if child.IsFolder() {
		t.Fatalf("expected item child to not be a folder")
	}
}

func TestNewChildFolderDescriptorUnderRoot(t *testing.T) {
	root := NewRootFolderDescriptor("widget")
	child := NewChildFolderDescriptor(root, "docs")

	if child.AbsoluteFilePath() != "docs" {
		t.Fatalf("expected child path 'docs' under root, got %q", child.AbsoluteFilePath())
	}
	if !child.IsFolder() || child.IsRootFolder() {
		t.Fatalf("expected a non-root folder child, folder=%v root=%v", child.IsFolder(), child.IsRootFolder())
	}
}

func TestJoinPathTrimsSlashes(t *testing.T) {
	parent := NewFolderDescriptor("widget", "docs/")
	child := NewChildItemDescriptor(parent, "/a.json")

	if child.AbsoluteFilePath() != "docs/a.json" {
		t.Fatalf("expected trimmed join 'docs/a.json', got %q", child.AbsoluteFilePath())
	}
}

func TestValidatePathAcceptsOrdinaryPaths(t *testing.T) {
	for _, p := range []string{"a", "a/b", "a/b/c.json", "docs"} {
		if err := ValidatePath(p); err != nil {
			t.Fatalf("expected %q to be valid, got %v", p, err)
		}
	}
}

func TestValidatePathRejectsTraversalAndOddSegments(t *testing.T) {
	for _, p := range []string{"..", "a/../b", "../a", "a/..", ".", "a/./b", "/a", "a//b"} {
		if err := ValidatePath(p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("expected %q to be rejected as invalid, got %v", p, err)
		}
	}
}
