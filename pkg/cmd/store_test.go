package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnsafeCleanDataDir(t *testing.T) {
	dataDir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dataDir, "devnode"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "devnode", "MANIFEST"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "stray.log"), []byte("x"), 0o600))

	require.NoError(t, UnsafeCleanDataDir(dataDir))

	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// The directory itself survives.
	info, err := os.Stat(dataDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestUnsafeCleanDataDirMissing(t *testing.T) {
	assert.NoError(t, UnsafeCleanDataDir(filepath.Join(t.TempDir(), "does-not-exist")))
}
