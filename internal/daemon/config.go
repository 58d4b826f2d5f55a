// Package daemon runs the process that owns the memesearch index. It keeps
// the embedder warm, runs the periodic scheduler and the watcher, and serves
// JSON-RPC 2.0 over a Unix socket so the CLI and other front ends can drive
// the library without reopening the index.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/memesearch/internal/config"
)

// Config holds configuration for the daemon service.
type Config struct {
	// SocketPath is the Unix domain socket path for IPC.
	// Default: <data_dir>/memesearch.sock
	SocketPath string

	// PIDPath is the file path for storing the daemon's process ID.
	// Default: <data_dir>/memesearch.pid
	PIDPath string

	// Timeout bounds one client request, connection included.
	// Default: 30s
	Timeout time.Duration

	// ShutdownGracePeriod is how long in-flight requests get after shutdown
	// begins.
	// Default: 10s
	ShutdownGracePeriod time.Duration
}

// ConfigFrom derives the daemon configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SocketPath:          cfg.SocketPath(),
		PIDPath:             cfg.PIDPath(),
		Timeout:             30 * time.Second,
		ShutdownGracePeriod: 10 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c Config) Validate() error {
	if c.SocketPath == "" {
		return fmt.Errorf("socket path cannot be empty")
	}
	if c.PIDPath == "" {
		return fmt.Errorf("PID path cannot be empty")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("shutdown grace period must be positive")
	}
	return nil
}

// EnsureDir creates the directories for the socket and PID files.
func (c Config) EnsureDir() error {
	for _, dir := range []string{filepath.Dir(c.SocketPath), filepath.Dir(c.PIDPath)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create daemon directory %s: %w", dir, err)
		}
	}
	return nil
}
