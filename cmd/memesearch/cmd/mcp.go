package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/daemon"
	"github.com/Aman-CERP/memesearch/internal/logging"
	"github.com/Aman-CERP/memesearch/internal/mcp"
)

func newMCPCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve image search to an MCP client over stdio",
		Long: `Run a Model Context Protocol server on stdin/stdout.

Tools: search_images, sync_status, start_sync. Thumbnails are exposed as
thumbnail:// resources.

When a daemon is running the server forwards to it; otherwise it opens
the index itself and keeps it fresh in the background. Nothing but
JSON-RPC is written to stdout; logs go to <data-dir>/logs/.`,
		Example: `  # Claude Desktop / any MCP client config:
  {"command": "memesearch", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd, g)
		},
	}
}

func runMCP(cmd *cobra.Command, g *globalFlags) error {
	cfg, err := g.config()
	if err != nil {
		return err
	}

	// stdout belongs to JSON-RPC from here on.
	g.stopLogging()
	level := cfg.Server.LogLevel
	if g.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(cfg.LogDir(), level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var b mcp.Backend
	client := daemon.NewClient(daemon.ConfigFrom(cfg))
	if client.IsRunning() {
		slog.Info("mcp_backend_daemon", slog.String("socket", cfg.SocketPath()))
		b = &remoteBackend{client: client, cfg: cfg}
	} else {
		a, err := app.New(ctx, cfg, app.WithLogger(slog.Default()))
		if err != nil {
			slog.Error("mcp_app_failed", slog.String("error", err.Error()))
			return err
		}
		defer func() { _ = a.Close() }()
		if err := a.Start(ctx); err != nil {
			return err
		}
		slog.Info("mcp_backend_local", slog.String("data_dir", cfg.Paths.DataDir))
		b = a
	}

	srv, err := mcp.NewServer(b, slog.Default())
	if err != nil {
		return err
	}
	return srv.Serve(ctx, "stdio")
}
