package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/memesearch/internal/output"
)

func newFoldersCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "folders",
		Short: "List or change the indexed folders",
		Long: `List or change the folders memesearch indexes.

Folders are stored as absolute paths. Adding a folder inside one that is
already tracked changes nothing; removing a folder drops its images from
the index.

Without a running daemon, a change is indexed right away and the command
waits for it. Use --no-wait to leave the indexing to the next sync.`,
		Example: `  memesearch folders
  memesearch folders add ~/Pictures/memes
  memesearch folders remove ~/Pictures/memes/old
  memesearch folders set ~/memes ~/Downloads/reactions`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				folders, err := b.Folders(ctx)
				if err != nil {
					return err
				}
				output.New(cmd.OutOrStdout()).Folders(folders)
				return nil
			})
		},
	}

	cmd.AddCommand(newFoldersAddCmd(g))
	cmd.AddCommand(newFoldersRemoveCmd(g))
	cmd.AddCommand(newFoldersSetCmd(g))
	return cmd
}

// followOptions holds the flags shared by commands that trigger a pass.
type followOptions struct {
	noWait bool
	plain  bool
}

func (o *followOptions) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.noWait, "no-wait", false, "Do not wait for the triggered sync")
	cmd.Flags().BoolVar(&o.plain, "plain", false, "Plain progress output (no TUI)")
}

func newFoldersAddCmd(g *globalFlags) *cobra.Command {
	var opts followOptions
	cmd := &cobra.Command{
		Use:   "add <dir>...",
		Short: "Start indexing folders",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				out := output.New(cmd.OutOrStdout())
				changed := false
				for _, dir := range args {
					ok, err := b.AddFolder(ctx, dir)
					if err != nil {
						return err
					}
					if ok {
						out.Successf("Added %s", dir)
						changed = true
					} else {
						out.Statusf("📂", "%s is already indexed", dir)
					}
				}
				return afterFolderChange(ctx, cmd, b, out, changed, opts)
			})
		},
	}
	opts.register(cmd)
	return cmd
}

func newFoldersRemoveCmd(g *globalFlags) *cobra.Command {
	var opts followOptions
	cmd := &cobra.Command{
		Use:     "remove <dir>...",
		Aliases: []string{"rm"},
		Short:   "Stop indexing folders and drop their images",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				out := output.New(cmd.OutOrStdout())
				changed := false
				for _, dir := range args {
					ok, err := b.RemoveFolder(ctx, dir)
					if err != nil {
						return err
					}
					if ok {
						out.Successf("Removed %s", dir)
						changed = true
					} else {
						out.Warningf("%s is not an indexed folder", dir)
					}
				}
				return afterFolderChange(ctx, cmd, b, out, changed, opts)
			})
		},
	}
	opts.register(cmd)
	return cmd
}

func newFoldersSetCmd(g *globalFlags) *cobra.Command {
	var opts followOptions
	cmd := &cobra.Command{
		Use:   "set [dir]...",
		Short: "Replace the indexed folders",
		Long: `Replace the indexed folders with the given set. Nested folders collapse
into their parents. With no arguments every folder is removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.withBackend(cmd, func(ctx context.Context, b backend) error {
				roots, err := b.SetRoots(ctx, args)
				if err != nil {
					return err
				}
				out := output.New(cmd.OutOrStdout())
				out.Folders(roots)
				return afterFolderChange(ctx, cmd, b, out, true, opts)
			})
		},
	}
	opts.register(cmd)
	return cmd
}

// afterFolderChange reports the pass a folder change triggered. A daemon
// runs it on its own; in process the command follows it unless told not to,
// since exiting would interrupt it.
func afterFolderChange(ctx context.Context, cmd *cobra.Command, b backend, out *output.Writer, changed bool, opts followOptions) error {
	if !changed {
		return nil
	}
	if _, remote := b.(*remoteBackend); remote {
		out.Status("", "The daemon is indexing in the background. Check with: memesearch status")
		return nil
	}
	if opts.noWait {
		out.Status("", "Run 'memesearch sync' to index the changes.")
		return nil
	}
	return followSync(ctx, cmd, b, opts.plain)
}
