// Package fsutil provides the file system helpers shared by the fetchers and
// the post-processing pipeline.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureDir creates a directory and all necessary parents with DirModeDefault.
func EnsureDir(path string) error {
	if path == "" {
		return fmt.Errorf("directory path cannot be empty")
	}
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of a file path if it doesn't exist.
func EnsureFileDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// WithinDir reports whether target, once cleaned, stays inside root.
func WithinDir(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
