package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

// DirLock is an exclusive cross-process lock on a data directory. Only the
// holder may write the index.
type DirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDirLock creates a lock backed by the file at path.
func NewDirLock(path string) *DirLock {
	return &DirLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. When another process holds it
// the error carries ERR_204_DATA_DIR_LOCKED.
func (l *DirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return merrors.New(merrors.ErrCodeDataDirLocked, "data directory is in use by another memesearch process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("Stop the running daemon (`memesearch serve`) or talk to it instead of opening the index directly")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call more than once.
func (l *DirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DirLock) Path() string { return l.path }

// IsLocked reports whether this process holds the lock.
func (l *DirLock) IsLocked() bool { return l.locked }
