package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/output"
	"github.com/Aman-CERP/memesearch/internal/search"
	"github.com/Aman-CERP/memesearch/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit    int
	minScore float64
	format   string // "text", "json"
	explain  bool
}

func newSearchCmd(g *globalFlags) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find images matching a description or their text",
		Long: `Rank indexed images against a free-text query.

The score blends CLIP similarity between the query and each image with a
lexical match against the image's OCR text. A result whose text contains
the whole query ranks above one that only shares words with it.`,
		Example: `  memesearch search "cat falling off a table"
  memesearch search "this is fine" --limit 5
  memesearch search "stonks" --format json
  memesearch search "distracted boyfriend" --explain`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				return runSearch(ctx, cmd, b, query, opts)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", 0, "Drop results scoring below this")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.explain, "explain", false, "Show the semantic and lexical component scores")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, b backend, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return merrors.New(merrors.ErrCodeQueryEmpty, "query cannot be empty", nil).
			WithSuggestion("Describe the image or quote text that appears in it")
	}
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (use text or json)", opts.format)
	}

	cfg := b.Config()
	searchOpts := search.Options{Limit: opts.limit, MinScore: opts.minScore}
	if searchOpts.Limit <= 0 {
		searchOpts.Limit = cfg.Search.Limit
	}
	if searchOpts.MinScore <= 0 {
		searchOpts.MinScore = cfg.Search.MinScore
	}

	start := time.Now()
	slog.Info("search_started", slog.String("query", query), slog.Int("limit", searchOpts.Limit))
	results, err := b.SearchWithOptions(ctx, query, searchOpts)
	if err != nil {
		slog.Warn("search_failed", slog.String("query", query), slog.String("error", err.Error()))
		return err
	}
	slog.Info("search_complete",
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	if opts.format == "json" {
		if results == nil {
			results = []search.Result{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	stdout := cmd.OutOrStdout()
	out := output.NewWithColor(stdout, ui.IsTTY(stdout) && !ui.DetectNoColor())
	out.Results(query, results, opts.explain)
	return nil
}
