// Package cmd provides the CLI commands for memesearch.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/config"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/logging"
	"github.com/Aman-CERP/memesearch/internal/profiling"
	"github.com/Aman-CERP/memesearch/pkg/version"
)

// globalFlags carries the persistent flags and the lazily loaded config.
type globalFlags struct {
	dataDir string
	debug   bool
	profile profiling.Options

	cfg            *config.Config
	loggingCleanup func()
	profiler       *profiling.Session
}

// config loads the configuration once per invocation.
func (g *globalFlags) config() (*config.Config, error) {
	if g.cfg != nil {
		return g.cfg, nil
	}
	cfg, err := config.Load(g.dataDir)
	if err != nil {
		return nil, merrors.Config("cannot load configuration", err).
			WithSuggestion("Check " + config.GetUserConfigPath() + " and MEMESEARCH_* variables")
	}
	g.cfg = cfg
	return cfg, nil
}

// NewRootCmd creates the root command for the memesearch CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(&globalFlags{})
}

func newRootCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memesearch",
		Short: "Search your meme folders by meaning and by the text inside images",
		Long: `memesearch indexes image folders with CLIP embeddings and OCR text,
then ranks them against free-text queries.

Add a folder, sync it, and search:

  memesearch folders add ~/Pictures/memes
  memesearch sync
  memesearch search "drake disapproves"

Run 'memesearch serve' to keep the index fresh in the background, or
'memesearch mcp' to expose search to an MCP client.`,
		Version:       version.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetVersionTemplate("memesearch version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&g.dataDir, "data-dir", "", "Data directory (default $XDG_DATA_HOME/memesearch)")
	cmd.PersistentFlags().BoolVar(&g.debug, "debug", false, "Write debug logs to <data-dir>/logs/")

	cmd.PersistentFlags().StringVar(&g.profile.CPU, "cpu-profile", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&g.profile.Heap, "mem-profile", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&g.profile.Trace, "trace", "", "Write an execution trace to this file")
	for _, name := range []string{"cpu-profile", "mem-profile", "trace"} {
		_ = cmd.PersistentFlags().MarkHidden(name)
	}

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := g.startLogging(); err != nil {
			return err
		}
		return g.startProfiling()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		err := g.stopProfiling()
		g.stopLogging()
		return err
	}

	cmd.AddCommand(newFoldersCmd(g))
	cmd.AddCommand(newSyncCmd(g))
	cmd.AddCommand(newSearchCmd(g))
	cmd.AddCommand(newThumbnailCmd(g))
	cmd.AddCommand(newStatusCmd(g))
	cmd.AddCommand(newServeCmd(g))
	cmd.AddCommand(newStopCmd(g))
	cmd.AddCommand(newMCPCmd(g))
	cmd.AddCommand(newConfigCmd(g))
	cmd.AddCommand(newDoctorCmd(g))
	cmd.AddCommand(newLogsCmd(g))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging routes slog to the data dir's log file with --debug, and to
// stderr at warn level otherwise so command output stays clean.
func (g *globalFlags) startLogging() error {
	if !g.debug {
		logging.SetupStderr("warn")
		return nil
	}
	cfg, err := g.config()
	if err != nil {
		return err
	}
	logCfg := logging.DefaultConfig(cfg.LogDir())
	logCfg.Level = "debug"
	logCfg.WriteToStderr = false
	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	g.loggingCleanup = cleanup
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.LogPath(cfg.LogDir())),
		slog.String("version", version.Version))
	return nil
}

func (g *globalFlags) stopLogging() {
	if g.loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		g.loggingCleanup()
		g.loggingCleanup = nil
	}
}

func (g *globalFlags) startProfiling() error {
	if !g.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(g.profile)
	if err != nil {
		return err
	}
	g.profiler = s
	slog.Debug("profiling_started",
		slog.String("cpu", g.profile.CPU),
		slog.String("heap", g.profile.Heap),
		slog.String("trace", g.profile.Trace))
	return nil
}

// stopProfiling flushes any running profiles. It runs again from Execute
// because cobra skips post-run hooks when a command fails.
func (g *globalFlags) stopProfiling() error {
	if g.profiler == nil {
		return nil
	}
	err := g.profiler.Stop()
	g.profiler = nil
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// Execute runs the root command and prints failures in CLI form.
func Execute() error {
	g := &globalFlags{}
	err := newRootCmd(g).Execute()
	if stopErr := g.stopProfiling(); err == nil {
		err = stopErr
	}
	g.stopLogging()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, merrors.FormatForCLI(err))
	}
	return err
}
