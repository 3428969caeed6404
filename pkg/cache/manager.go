// Package cache reports and reclaims disk usage below the wordlist base
// directory: finished wordlists per group, interrupted ".part" transfers and
// leftover ".torrent" descriptors.
package cache

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/blackarch/wordlistctl/internal/logger"
	"github.com/blackarch/wordlistctl/pkg/errors"
	"github.com/blackarch/wordlistctl/pkg/manifest"
)

const (
	partialSuffix    = ".part"
	descriptorSuffix = ".torrent"
)

// Manager inspects one base directory.
type Manager struct {
	directory string
}

// NewManager creates a manager for directory.
func NewManager(directory string) *Manager {
	return &Manager{directory: directory}
}

// GetDirectory returns the managed directory path.
func (m *Manager) GetDirectory() string {
	return m.directory
}

// SetDirectory sets the managed directory path.
func (m *Manager) SetDirectory(dir string) error {
	if dir == "" {
		return ErrCacheDirectory
	}
	m.directory = dir
	return nil
}

// GetInfo walks the directory and sums file sizes. A missing directory is
// reported as empty.
func (m *Manager) GetInfo() (*Info, error) {
	if m.directory == "" {
		return nil, ErrCacheDirectory
	}

	info := &Info{Directory: m.directory}
	groups := make(map[string]*GroupInfo)

	err := m.walk(func(path string, size int64) {
		switch {
		case strings.HasSuffix(path, partialSuffix):
			info.PartialSize += size
			info.PartialFiles++
		case strings.HasSuffix(path, descriptorSuffix):
			info.DescriptorSize += size
			info.DescriptorFiles++
		default:
			name := groupOf(m.directory, path)
			g, ok := groups[name]
			if !ok {
				g = &GroupInfo{Name: name}
				groups[name] = g
			}
			g.Size += size
			g.Files++
		}
		info.TotalSize += size
	})
	if err != nil {
		return nil, errors.Wrap(ErrCacheInfo, err.Error())
	}

	for _, g := range groups {
		info.Groups = append(info.Groups, *g)
	}
	sort.Slice(info.Groups, func(i, j int) bool { return info.Groups[i].Name < info.Groups[j].Name })

	return info, nil
}

// Clean removes the selected leftovers. With no option set both kinds are removed.
func (m *Manager) Clean(options CleanOptions) (*CleanResult, error) {
	if m.directory == "" {
		return nil, ErrCacheDirectory
	}
	if !options.Partials && !options.Descriptors {
		options.Partials = true
		options.Descriptors = true
	}

	result := &CleanResult{}
	var victims []string
	err := m.walk(func(path string, size int64) {
		switch {
		case options.Partials && strings.HasSuffix(path, partialSuffix):
			result.PartialFreed += size
		case options.Descriptors && strings.HasSuffix(path, descriptorSuffix):
			result.DescriptorFreed += size
		default:
			return
		}
		victims = append(victims, path)
	})
	if err != nil {
		return nil, errors.Wrap(ErrCacheClean, err.Error())
	}

	for _, path := range victims {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return result, errors.Wrapf(ErrCacheClean, "remove %s: %v", path, err)
		}
		logger.Debug("Removed leftover file", logger.Fields{"path": path})
		result.Removed = append(result.Removed, path)
	}
	result.TotalFreed = result.PartialFreed + result.DescriptorFreed

	return result, nil
}

func (m *Manager) walk(visit func(path string, size int64)) error {
	if _, err := os.Stat(m.directory); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(m.directory, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() && d.Name() == manifest.DirName {
			return fs.SkipDir
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		visit(path, fi.Size())
		return nil
	})
}

// groupOf returns the first path element below root, or "." for files
// directly in root.
func groupOf(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "."
	}
	first, _, found := strings.Cut(filepath.ToSlash(rel), "/")
	if !found {
		return "."
	}
	return first
}
