package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/async"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/output"
	"github.com/Aman-CERP/memesearch/internal/ui"
)

// pollInterval is how often sync progress is sampled for display.
const pollInterval = 100 * time.Millisecond

func newSyncCmd(g *globalFlags) *cobra.Command {
	var plain, detach bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Index new, changed and removed images",
		Long: `Run a sync pass over the indexed folders.

New and modified images are embedded, OCR'd and stored; images that
disappeared are dropped. Unchanged files are skipped by size and
modification time.

With a running daemon the pass runs there; --detach returns as soon as it
has started. Otherwise the pass runs in this process and Ctrl+C stops it
(the next sync resumes where it left off).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				return runSync(ctx, cmd, b, plain, detach)
			})
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress output (no TUI)")
	cmd.Flags().BoolVar(&detach, "detach", false, "Return once the daemon has started the pass")
	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, b backend, plain, detach bool) error {
	out := output.New(cmd.OutOrStdout())
	_, remote := b.(*remoteBackend)

	if !b.StartSync(ctx) {
		snap, err := b.Poll(ctx)
		if err != nil {
			return err
		}
		switch {
		case snap.Status == string(async.StatusSyncing):
			out.Status("🔄", "A sync is already running; following it.")
		case !b.StartSync(ctx):
			// The running pass ended between the two calls, yet a new
			// one still cannot start.
			return merrors.New(merrors.ErrCodeSyncBusy, "could not start a sync pass", nil).
				WithSuggestion("Check the daemon log with: memesearch logs")
		}
	}

	if remote && detach {
		out.Success("Sync started in the daemon. Check with: memesearch status")
		return nil
	}
	return followSync(ctx, cmd, b, plain)
}

// followSync renders progress until the running pass ends. Interrupting the
// command cancels an in-process pass; a daemon pass keeps going.
func followSync(ctx context.Context, cmd *cobra.Command, b backend, plain bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := b.Config()
	r := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(plain),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithTitle(cfg.Paths.DataDir)))

	_, err := ui.Follow(ctx, r, b.Poll, pollInterval)
	if err != nil && errors.Is(err, context.Canceled) {
		output.New(cmd.OutOrStdout()).Warning("Interrupted; the next sync picks up where this one stopped.")
		return nil
	}
	return err
}
