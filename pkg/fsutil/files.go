package fsutil

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// PartPath returns the in-progress sibling of a final destination path.
func PartPath(final string) string {
	return final + PartSuffix
}

// Exists reports whether path names an existing file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileSize returns the size of path, or 0 when it does not exist.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RemoveIfExists removes path and ignores a missing file.
func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Move renames src to dst. The rename is atomic on the same file system; across
// file systems it falls back to copy and delete.
func Move(src, dst string) error {
	if src == "" || dst == "" {
		return fmt.Errorf("source and destination paths cannot be empty")
	}
	if err := EnsureFileDir(dst); err != nil {
		return fmt.Errorf("failed to create destination directory for %s: %w", dst, err)
	}

	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossFilesystemError(err) {
		return fmt.Errorf("failed to rename %s to %s: %w", src, dst, err)
	}
	return moveFile(src, dst)
}

func isCrossFilesystemError(err error) bool {
	if err == nil {
		return false
	}
	var linkError *os.LinkError
	if errors.As(err, &linkError) {
		if errno, ok := linkError.Err.(syscall.Errno); ok {
			return errno == syscall.EXDEV
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "cross-device")
}

func moveFile(src, dst string) error {
	tmp := dst + ".tmp"
	if err := Copy(src, tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to copy file %s to %s: %w", src, dst, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to finalize %s: %w", dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("failed to remove source file %s after copy: %w", src, err)
	}
	return nil
}

// Copy copies the contents of srcFile to dstFile.
func Copy(srcFile, dstFile string) error {
	src, err := os.Open(srcFile)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", srcFile, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, FileModeDefault)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", dstFile, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy from %s to %s: %w", srcFile, dstFile, err)
	}
	return dst.Close()
}

// TrimSuffixFold strips suffix from name ignoring case.
func TrimSuffixFold(name, suffix string) string {
	if len(name) >= len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)]
	}
	return name
}

// SiblingPath joins name into the directory holding path.
func SiblingPath(path, name string) string {
	return filepath.Join(filepath.Dir(path), name)
}
