// Package archive unpacks fetched wordlists: multi-file archives are
// extracted into their directory, single compressed streams are inflated to a
// sibling file.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/fsutil"
)

// Kind classifies a file name by its compression suffix.
type Kind int

const (
	KindNone Kind = iota
	KindArchive
	KindStream
)

// Longer suffixes come first so ".tar.gz" wins over ".gz".
var archiveSuffixes = []string{
	".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst", ".tar.lz4", ".tar.br", ".tar.lz",
	".tgz", ".tbz2", ".tbz", ".txz", ".tzst",
	".tar", ".zip", ".7z", ".rar",
}

var streamDecompressors = map[string]archives.Decompressor{
	".gz":  archives.Gz{},
	".bz2": archives.Bz2{},
	".xz":  archives.Xz{},
	".zst": archives.Zstd{},
	".lz4": archives.Lz4{},
	".br":  archives.Brotli{},
	".sz":  archives.Sz{},
	".lz":  archives.Lzip{},
}

// Classify returns the kind of name and the matched suffix.
func Classify(name string) (Kind, string) {
	lower := strings.ToLower(filepath.Base(name))
	for _, s := range archiveSuffixes {
		if strings.HasSuffix(lower, s) && len(lower) > len(s) {
			return KindArchive, s
		}
	}
	ext := filepath.Ext(lower)
	if _, ok := streamDecompressors[ext]; ok && len(lower) > len(ext) {
		return KindStream, ext
	}
	return KindNone, ""
}

// StreamOutput returns the file a single-stream name inflates to.
func StreamOutput(name string) (string, bool) {
	kind, suffix := Classify(name)
	if kind != KindStream {
		return "", false
	}
	return fsutil.TrimSuffixFold(name, suffix), true
}

// Result lists what an extraction produced.
type Result struct {
	// Written are the files created.
	Written []string
	// Existing are outputs that were already present and left untouched.
	Existing []string
}

// Manager handles archive extraction and stream inflation.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// ExtractAll extracts every file of archivePath into destDir. Entries that
// already exist on disk are skipped with a warning; entries that would land
// outside destDir fail the extraction.
func (am *Manager) ExtractAll(ctx context.Context, archivePath, destDir string) (Result, error) {
	var res Result

	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return res, fmt.Errorf("failed to open archive file: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if err := fsutil.EnsureDir(destDir); err != nil {
		return res, fmt.Errorf("failed to create destination directory: %w", err)
	}

	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return am.extractEntry(fsys, path, destDir, d, &res)
	})
	return res, err
}

// extractEntry processes a single archive entry and writes it to destDir.
func (am *Manager) extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry, res *Result) error {
	if path == "." {
		return nil
	}

	targetPath := filepath.Join(destDir, filepath.FromSlash(path))
	if !fsutil.WithinDir(destDir, targetPath) {
		return errors.Wrapf(errors.ErrUnsafePath, "%s", path)
	}

	if d.IsDir() {
		return fsutil.EnsureDir(targetPath)
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("failed to get file info for %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		logger.Debug("Skipping non-regular archive entry", logger.Fields{"entry": path, "mode": info.Mode().String()})
		return nil
	}

	if fsutil.Exists(targetPath) {
		logger.Warn("Extraction target already exists, skipping", logger.Fields{"path": targetPath})
		res.Existing = append(res.Existing, targetPath)
		return nil
	}

	if err := am.writeRegularFile(fsys, path, targetPath); err != nil {
		return err
	}
	res.Written = append(res.Written, targetPath)
	return nil
}

// writeRegularFile copies an archive entry through a temp file so that an
// interrupted extraction never leaves a truncated file under the final name.
func (am *Manager) writeRegularFile(fsys fs.FS, path, targetPath string) error {
	srcFile, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer func() { _ = srcFile.Close() }()

	return writeAtomically(targetPath, srcFile)
}

// Inflate decompresses the single-stream file at path into a sibling file
// with the suffix stripped. existed is true when the output was already there.
func (am *Manager) Inflate(ctx context.Context, path string) (out string, existed bool, err error) {
	_, suffix := Classify(path)
	out, ok := StreamOutput(path)
	if !ok {
		return "", false, errors.Wrapf(errors.ErrUnsupportedSuffix, "%s", filepath.Base(path))
	}
	if fsutil.Exists(out) {
		logger.Warn("Decompression target already exists, skipping", logger.Fields{"path": out})
		return out, true, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = src.Close() }()

	rc, err := streamDecompressors[suffix].OpenReader(src)
	if err != nil {
		return "", false, fmt.Errorf("failed to open %s stream: %w", suffix, err)
	}
	defer func() { _ = rc.Close() }()

	if err := writeAtomically(out, &ctxReader{ctx: ctx, r: rc}); err != nil {
		return "", false, err
	}
	return out, false, nil
}

func writeAtomically(targetPath string, r io.Reader) error {
	if err := fsutil.EnsureFileDir(targetPath); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", targetPath, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(targetPath), ".extract-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", targetPath, err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", targetPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", targetPath, err)
	}
	if err := os.Chmod(tmpPath, fsutil.FileModeDefault); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to set permissions for %s: %w", targetPath, err)
	}
	if err := os.Rename(tmpPath, targetPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize %s: %w", targetPath, err)
	}
	return nil
}

// ctxReader stops long decompressions when the batch is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
