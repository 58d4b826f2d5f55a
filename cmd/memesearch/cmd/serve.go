package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/daemon"
	"github.com/Aman-CERP/memesearch/internal/logging"
	"github.com/Aman-CERP/memesearch/internal/output"
)

func newServeCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the background daemon",
		Long: `Run the memesearch daemon in the foreground.

The daemon owns the data directory, keeps the embedding model warm, syncs
on a schedule and, when enabled, on filesystem changes. CLI commands talk
to it over a Unix socket while it runs.

Stop it with Ctrl+C, SIGTERM or 'memesearch stop'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, g)
		},
	}
}

func runServe(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())
	dcfg := daemon.ConfigFrom(cfg)

	if daemon.NewClient(dcfg).IsRunning() {
		out.Status("", "Daemon is already running")
		return nil
	}

	// --debug already routes logs to the file.
	if g.loggingCleanup == nil {
		logCfg := logging.DefaultConfig(cfg.LogDir())
		logCfg.Level = cfg.Server.LogLevel
		cleanup, err := logging.SetupDefault(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.WithLogger(slog.Default()))
	if err != nil {
		slog.Error("daemon_app_failed", slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = a.Close() }()

	d, err := daemon.New(dcfg, a, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	out.Status("🚀", "memesearch daemon")
	out.Status("", "Data:   "+cfg.Paths.DataDir)
	out.Status("", "Socket: "+dcfg.SocketPath)
	out.Status("", "Logs:   "+logging.LogPath(cfg.LogDir()))
	out.Status("", "Press Ctrl+C to stop")
	out.Newline()

	return d.Run(ctx)
}

// stopWait bounds how long stop waits for the daemon to exit.
const stopWait = 15 * time.Second

func newStopCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Long:  `Send SIGTERM to the running daemon and wait for it to exit.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			pidFile := daemon.NewPIDFile(cfg.PIDPath())

			// A stale file naming a dead process counts as not running.
			if !pidFile.IsRunning() {
				out.Status("", "Daemon is not running")
				return nil
			}
			if err := pidFile.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to stop daemon: %w", err)
			}

			deadline := time.Now().Add(stopWait)
			for pidFile.IsRunning() {
				if time.Now().After(deadline) {
					return fmt.Errorf("daemon did not exit within %s", stopWait)
				}
				time.Sleep(100 * time.Millisecond)
			}
			out.Success("Daemon stopped")
			return nil
		},
	}
}
