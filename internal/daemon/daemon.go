package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Aman-CERP/memesearch/internal/app"
)

// Daemon ties an App to the socket server and the PID file.
type Daemon struct {
	cfg    Config
	app    *app.App
	server *Server
	pid    *PIDFile
	logger *slog.Logger
}

// New creates a daemon serving a. The daemon does not own a; the caller
// closes it after Run returns.
func New(cfg Config, a *app.App, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid daemon config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	server := NewServer(cfg.SocketPath, a, logger)
	server.SetTimeout(cfg.Timeout)
	return &Daemon{
		cfg:    cfg,
		app:    a,
		server: server,
		pid:    NewPIDFile(cfg.PIDPath),
		logger: logger,
	}, nil
}

// Run claims the PID file, starts the background sync services and serves
// requests until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.cfg.EnsureDir(); err != nil {
		return err
	}
	if err := d.pid.Claim(); err != nil {
		return err
	}
	defer func() {
		if err := d.pid.Remove(); err != nil {
			d.logger.Warn("pidfile_remove_failed", slog.String("error", err.Error()))
		}
	}()

	if err := d.app.Start(ctx); err != nil {
		return err
	}

	d.logger.Info("daemon_started",
		slog.String("socket", d.cfg.SocketPath),
		slog.String("pid_file", d.cfg.PIDPath))

	errCh := make(chan error, 1)
	go func() { errCh <- d.server.ListenAndServe(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	// The server stops accepting at once; give in-flight requests the grace
	// period to finish.
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	case <-time.After(d.cfg.ShutdownGracePeriod):
		d.logger.Warn("daemon_shutdown_timeout", slog.Duration("grace", d.cfg.ShutdownGracePeriod))
	}
	d.logger.Info("daemon_stopped")
	return nil
}

// Stop closes the listener. Run returns once in-flight requests finish.
func (d *Daemon) Stop() error {
	return d.server.Close()
}
