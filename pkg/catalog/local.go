package catalog

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/blackarch/wordlistctl/pkg/manifest"
)

// LocalFile is a wordlist found on disk below the base directory.
type LocalFile struct {
	Path string
	Size int64
}

// SearchLocal walks root and returns regular files whose base name matches
// query. In-progress ".part" files and completion records are skipped. A missing root yields no results.
func SearchLocal(root, query string, regex bool) ([]LocalFile, error) {
	match, err := Matcher(query, regex)
	if err != nil {
		return nil, err
	}

	var out []LocalFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return fs.SkipAll
			}
			return nil
		}
		if d.IsDir() && d.Name() == manifest.DirName {
			return fs.SkipDir
		}
		if !d.Type().IsRegular() || filepath.Ext(path) == ".part" {
			return nil
		}
		if !match(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, LocalFile{Path: path, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
