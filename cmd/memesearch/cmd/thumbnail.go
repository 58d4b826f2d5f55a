package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/output"
	"github.com/Aman-CERP/memesearch/internal/ui"
)

func newThumbnailCmd(g *globalFlags) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "thumbnail <image>",
		Short: "Write the cached JPEG thumbnail of an image",
		Long: `Write the JPEG thumbnail of an image, generating and caching it if needed.

The JPEG goes to the file named by --output, or to stdout when stdout is
not a terminal.`,
		Example: `  memesearch thumbnail ~/memes/drake.png -o drake.jpg
  memesearch thumbnail ~/memes/drake.png | imgcat`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			if outPath == "" && ui.IsTTY(stdout) {
				return fmt.Errorf("refusing to write JPEG data to a terminal; use --output")
			}
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				data, err := b.Thumbnail(ctx, args[0])
				if err != nil {
					return err
				}
				if outPath == "" {
					_, err = stdout.Write(data)
					return err
				}
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return fmt.Errorf("failed to write thumbnail: %w", err)
				}
				output.New(stdout).Successf("Wrote %s (%s)", outPath, ui.FormatBytes(int64(len(data))))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "Write the JPEG to this file")
	return cmd
}
