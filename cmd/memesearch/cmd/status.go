package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/ui"
)

func newStatusCmd(g *globalFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index, sync and daemon status",
		Long: `Show what is indexed, how the last sync went and whether the daemon
is running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				info, err := b.StatusInfo(ctx)
				if err != nil {
					return err
				}
				r := ui.NewStatusRenderer(cmd.OutOrStdout(), !ui.IsTTY(cmd.OutOrStdout()) || ui.DetectNoColor())
				if jsonOutput {
					return r.RenderJSON(info)
				}
				return r.Render(info)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
