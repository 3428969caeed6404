package cache_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackarch/wordlistctl/pkg/cache"
)

// setupBaseDir lays out:
//
//	passwords/rockyou.txt      (10 bytes)
//	passwords/darkweb.txt.part (4 bytes)
//	usernames/names.txt        (6 bytes)
//	misc/big.torrent           (3 bytes)
//	misc/big/part1.txt         (5 bytes)
//
// plus a completion record, which is not counted.
func setupBaseDir(t *testing.T, root string) {
	t.Helper()
	files := map[string]string{
		"passwords/rockyou.txt":      "0123456789",
		"passwords/darkweb.txt.part": "abcd",
		"usernames/names.txt":        "admin\n",
		"misc/big.torrent":           "d4:",
		"misc/big/part1.txt":         "hello",
		".wordlistctl/misc/big.json": `{"entry":"big"}`,
	}
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestSetDirectory(t *testing.T) {
	tests := []struct {
		name        string
		directory   string
		expectError bool
	}{
		{"valid directory", t.TempDir(), false},
		{"empty directory", "", true},
		{"non-existent directory", filepath.Join(t.TempDir(), "nonexistent"), false},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			mgr := cache.NewManager(t.TempDir())

			err := mgr.SetDirectory(testCase.directory)

			if testCase.expectError {
				require.ErrorIs(t, err, cache.ErrCacheDirectory)
			} else {
				require.NoError(t, err)
				assert.Equal(t, testCase.directory, mgr.GetDirectory())
			}
		})
	}
}

func TestGetInfo(t *testing.T) {
	tempDir := t.TempDir()
	setupBaseDir(t, tempDir)

	info, err := cache.NewManager(tempDir).GetInfo()
	require.NoError(t, err)

	assert.Equal(t, tempDir, info.Directory)
	assert.Equal(t, int64(28), info.TotalSize)
	assert.Equal(t, []cache.GroupInfo{
		{Name: "misc", Size: 5, Files: 1},
		{Name: "passwords", Size: 10, Files: 1},
		{Name: "usernames", Size: 6, Files: 1},
	}, info.Groups)
	assert.Equal(t, int64(4), info.PartialSize)
	assert.Equal(t, 1, info.PartialFiles)
	assert.Equal(t, int64(3), info.DescriptorSize)
	assert.Equal(t, 1, info.DescriptorFiles)
}

func TestGetInfoMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nonexistent")

	info, err := cache.NewManager(dir).GetInfo()
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.TotalSize)
	assert.Empty(t, info.Groups)

	_, err = cache.NewManager("").GetInfo()
	assert.ErrorIs(t, err, cache.ErrCacheDirectory)
}

func TestClean(t *testing.T) {
	tests := []struct {
		name            string
		options         cache.CleanOptions
		partialGone     bool
		descriptorGone  bool
		partialFreed    int64
		descriptorFreed int64
	}{
		{"defaults to both", cache.CleanOptions{}, true, true, 4, 3},
		{"partials only", cache.CleanOptions{Partials: true}, true, false, 4, 0},
		{"descriptors only", cache.CleanOptions{Descriptors: true}, false, true, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			setupBaseDir(t, tempDir)

			result, err := cache.NewManager(tempDir).Clean(tt.options)
			require.NoError(t, err)

			assert.Equal(t, tt.partialFreed, result.PartialFreed)
			assert.Equal(t, tt.descriptorFreed, result.DescriptorFreed)
			assert.Equal(t, tt.partialFreed+tt.descriptorFreed, result.TotalFreed)

			partial := filepath.Join(tempDir, "passwords", "darkweb.txt.part")
			descriptor := filepath.Join(tempDir, "misc", "big.torrent")
			if tt.partialGone {
				assert.NoFileExists(t, partial)
			} else {
				assert.FileExists(t, partial)
			}
			if tt.descriptorGone {
				assert.NoFileExists(t, descriptor)
			} else {
				assert.FileExists(t, descriptor)
			}

			// Finished wordlists are never touched.
			assert.FileExists(t, filepath.Join(tempDir, "passwords", "rockyou.txt"))
			assert.FileExists(t, filepath.Join(tempDir, "misc", "big", "part1.txt"))
		})
	}
}

func TestCleanMissingDirectory(t *testing.T) {
	result, err := cache.NewManager(filepath.Join(t.TempDir(), "nonexistent")).Clean(cache.CleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.TotalFreed)
	assert.Empty(t, result.Removed)
}
