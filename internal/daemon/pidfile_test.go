package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalePID is above the default pid_max on Linux and macOS.
const stalePID = 4194304

func TestPIDFile_Write(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")

	pf := NewPIDFile(pidPath)
	require.NoError(t, pf.Write())

	data, err := os.ReadFile(pidPath)
	require.NoError(t, err)
	pid, err := strconv.Atoi(string(data))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Read(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte("12345\n"), 0o644))

	pid, err := NewPIDFile(pidPath).Read()
	require.NoError(t, err)
	assert.Equal(t, 12345, pid)
}

func TestPIDFile_Read_NotExists(t *testing.T) {
	_, err := NewPIDFile(filepath.Join(t.TempDir(), "missing.pid")).Read()
	assert.True(t, errors.Is(err, ErrPIDFileNotFound))
}

func TestPIDFile_Read_InvalidContent(t *testing.T) {
	for _, content := range []string{"not-a-number", "", "-4"} {
		pidPath := filepath.Join(t.TempDir(), "test.pid")
		require.NoError(t, os.WriteFile(pidPath, []byte(content), 0o644))

		_, err := NewPIDFile(pidPath).Read()
		assert.Error(t, err, "content %q", content)
	}
}

func TestPIDFile_Claim_Fresh(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "nested", "memesearch.pid")
	pf := NewPIDFile(pidPath)

	require.NoError(t, pf.Claim())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Claim_ReplacesStale(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "memesearch.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(stalePID)), 0o644))

	pf := NewPIDFile(pidPath)
	require.NoError(t, pf.Claim())
	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Claim_LiveOwner(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "memesearch.pid")
	// The parent process is alive for the duration of the test.
	ppid := os.Getppid()
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(ppid)), 0o644))

	err := NewPIDFile(pidPath).Claim()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestPIDFile_Remove(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	pf := NewPIDFile(pidPath)
	require.NoError(t, pf.Write())

	require.NoError(t, pf.Remove())
	_, err := os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err))

	// Second remove is a no-op.
	assert.NoError(t, pf.Remove())
}

func TestPIDFile_Remove_KeepsOtherOwner(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "test.pid")
	require.NoError(t, os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getppid())), 0o644))

	require.NoError(t, NewPIDFile(pidPath).Remove())
	_, err := os.Stat(pidPath)
	assert.NoError(t, err, "a file naming another process must survive")
}

func TestPIDFile_IsRunning(t *testing.T) {
	dir := t.TempDir()

	current := NewPIDFile(filepath.Join(dir, "current.pid"))
	require.NoError(t, current.Write())
	assert.True(t, current.IsRunning())

	assert.False(t, NewPIDFile(filepath.Join(dir, "missing.pid")).IsRunning())

	stalePath := filepath.Join(dir, "stale.pid")
	require.NoError(t, os.WriteFile(stalePath, []byte(strconv.Itoa(stalePID)), 0o644))
	assert.False(t, NewPIDFile(stalePath).IsRunning(), "stale PID should be detected as not running")
}

func TestPIDFile_Signal(t *testing.T) {
	dir := t.TempDir()

	current := NewPIDFile(filepath.Join(dir, "current.pid"))
	require.NoError(t, current.Write())
	assert.NoError(t, current.Signal(syscall.Signal(0)))

	stalePath := filepath.Join(dir, "stale.pid")
	require.NoError(t, os.WriteFile(stalePath, []byte(strconv.Itoa(stalePID)), 0o644))
	assert.Error(t, NewPIDFile(stalePath).Signal(syscall.Signal(0)))
}
