package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mholt/archives"
	"github.com/stretchr/testify/require"
)

// TarGz packs files (relative path -> content) into a .tar.gz at archivePath.
func TarGz(t *testing.T, archivePath string, files map[string]string) {
	t.Helper()
	src := t.TempDir()
	for rel, content := range files {
		full := filepath.Join(src, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	ctx := context.Background()
	inputs, err := archives.FilesFromDisk(ctx, nil, map[string]string{src + string(os.PathSeparator): ""})
	require.NoError(t, err)

	out, err := os.Create(archivePath)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()

	format := archives.CompressedArchive{Compression: archives.Gz{}, Archival: archives.Tar{}}
	require.NoError(t, format.Archive(ctx, out, inputs))
}
