package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/memesearch/internal/ui"
)

func TestStatusCmd_Text(t *testing.T) {
	dataDir, memes := indexedDataDir(t)

	out, err := runCLI(t, dataDir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "memesearch • "+dataDir)
	assert.Contains(t, out, "Images:      2")
	assert.Contains(t, out, memes)
	assert.Contains(t, out, "Sync:")
	assert.Contains(t, out, "Daemon:      stopped")
}

func TestStatusCmd_JSON(t *testing.T) {
	dataDir, memes := indexedDataDir(t)

	out, err := runCLI(t, dataDir, "status", "--json")
	require.NoError(t, err)

	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, 2, info.Entries)
	assert.Equal(t, []string{memes}, info.Folders)
	assert.Equal(t, 16, info.Dimensions)
	assert.Equal(t, dataDir, info.DataDir)
	assert.Nil(t, info.Daemon)
	assert.False(t, info.Interrupted)
}

// =============================================================================
// thumbnail
// =============================================================================

func TestThumbnailCmd_ToFile(t *testing.T) {
	dataDir, memes := indexedDataDir(t)
	dest := filepath.Join(t.TempDir(), "thumb.jpg")

	out, err := runCLI(t, dataDir, "thumbnail", filepath.Join(memes, "red.png"), "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+dest)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}), "JPEG magic")
}

func TestThumbnailCmd_ToPipe(t *testing.T) {
	dataDir, memes := indexedDataDir(t)

	out, err := runCLI(t, dataDir, "thumbnail", filepath.Join(memes, "sub", "blue.png"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix([]byte(out), []byte{0xFF, 0xD8, 0xFF}))
}

func TestThumbnailCmd_MissingImage(t *testing.T) {
	dataDir := testEnv(t)

	_, err := runCLI(t, dataDir, "thumbnail", filepath.Join(t.TempDir(), "gone.png"), "-o", filepath.Join(t.TempDir(), "x.jpg"))
	assert.Error(t, err)
}

// =============================================================================
// stop
// =============================================================================

func TestStopCmd_NotRunning(t *testing.T) {
	out, err := runCLI(t, testEnv(t), "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}

func TestStopCmd_StalePIDFile(t *testing.T) {
	dataDir := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "memesearch.pid"), []byte("4194304"), 0o644))

	out, err := runCLI(t, dataDir, "stop")
	require.NoError(t, err)
	assert.Contains(t, out, "Daemon is not running")
}
