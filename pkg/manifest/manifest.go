// Package manifest records which catalog entries were fetched to completion
// and which files they left below the base directory. A later run consults
// the record before choosing a fetcher, so a finished entry costs no network
// traffic whatever its protocol or decompression kind.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackarch/wordlistctl/pkg/fsutil"
)

// DirName is the directory below the base directory that holds the records.
const DirName = ".wordlistctl"

// FormatVersion is written into every record.
const FormatVersion = "1"

// Record describes one completed entry. Paths are relative to the base
// directory and use forward slashes.
type Record struct {
	FormatVersion string `json:"format_version"`
	Entry         string `json:"entry"`
	Group         string `json:"group"`
	// Source is the locator the entry was fetched from.
	Source   string `json:"source"`
	Protocol string `json:"protocol"`
	// Checksum is the catalog checksum at fetch time.
	Checksum string `json:"checksum,omitempty"`
	Verdict  string `json:"verdict"`
	// Artifact is the transferred file. It is empty once decompression removed it.
	Artifact string `json:"artifact,omitempty"`
	// Decompressed is set when decompression was requested for the run that
	// wrote the record.
	Decompressed bool `json:"decompressed"`
	// Files are the wordlists the entry produced, the artifact included when kept.
	Files       []string  `json:"files"`
	CompletedAt time.Time `json:"completed_at"`
}

// Store keeps one record file per entry.
type Store struct {
	root string
}

// NewStore creates a store for the base directory root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Dir returns the directory the records live in.
func (s *Store) Dir() string {
	return filepath.Join(s.root, DirName)
}

// Path returns the record file of entry in group.
func (s *Store) Path(group, entry string) string {
	return filepath.Join(s.Dir(), safeName(group), safeName(entry)+".json")
}

// Rel converts an absolute path below the base directory into record form.
func (s *Store) Rel(path string) (string, error) {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s", path, s.root)
	}
	return filepath.ToSlash(rel), nil
}

// Abs resolves a record path against the base directory.
func (s *Store) Abs(rel string) string {
	return filepath.Join(s.root, filepath.FromSlash(rel))
}

// Load returns the record of entry in group. A missing record is reported as
// ok=false without an error.
func (s *Store) Load(group, entry string) (Record, bool, error) {
	var rec Record
	data, err := os.ReadFile(s.Path(group, entry))
	if os.IsNotExist(err) {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("failed to read record: %w", err)
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, false, fmt.Errorf("failed to parse record %s: %w", s.Path(group, entry), err)
	}
	return rec, true, nil
}

// Complete reports whether rec still describes the files on disk: every
// recorded file exists and at least one file was recorded.
func (s *Store) Complete(rec Record) bool {
	if len(rec.Files) == 0 {
		return false
	}
	for _, f := range rec.Files {
		if !fsutil.Exists(s.Abs(f)) {
			return false
		}
	}
	return true
}

// Save writes rec atomically, replacing any earlier record of the entry.
func (s *Store) Save(rec Record) (err error) {
	if rec.FormatVersion == "" {
		rec.FormatVersion = FormatVersion
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}

	target := s.Path(rec.Group, rec.Entry)
	if err := fsutil.EnsureFileDir(target); err != nil {
		return fmt.Errorf("failed to create record directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".record-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync record: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close record: %w", err)
	}
	if err = os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("failed to store record %s: %w", target, err)
	}
	return nil
}

// Remove deletes the record of entry in group, if any.
func (s *Store) Remove(group, entry string) error {
	return fsutil.RemoveIfExists(s.Path(group, entry))
}

func safeName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
