package logging

import (
	"log/slog"
)

// SetupMCPMode initializes logging for the MCP stdio server. Records go to
// the log file only: stdout is reserved for JSON-RPC and anything written to
// it (or to stderr, which some clients merge) corrupts the stream.
func SetupMCPMode(dir, level string) (func(), error) {
	cfg := DefaultConfig(dir)
	cfg.Level = level
	cfg.WriteToStderr = false

	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	slog.Info("mcp_logging_initialized",
		slog.String("log_file", LogPath(dir)),
		slog.String("level", level))

	return cleanup, nil
}
