package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/memesearch/internal/config"
	"github.com/Aman-CERP/memesearch/internal/output"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration files",
		Long: `Show or create memesearch configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/memesearch/config.yaml)
  3. Data-dir config (<data-dir>/config.yaml)
  4. .env in the working directory
  5. Environment variables (MEMESEARCH_*)
  6. The --data-dir flag`,
		Example: `  memesearch config show
  memesearch config init --user
  memesearch config upgrade`,
	}

	cmd.AddCommand(newConfigShowCmd(g))
	cmd.AddCommand(newConfigInitCmd(g))
	cmd.AddCommand(newConfigUpgradeCmd(g))
	cmd.AddCommand(newConfigPathCmd(g))
	return cmd
}

func newConfigShowCmd(g *globalFlags) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// configTarget returns the file init and upgrade operate on.
func configTarget(g *globalFlags, user bool) (string, error) {
	if user {
		return config.GetUserConfigPath(), nil
	}
	cfg, err := g.config()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg.Paths.DataDir, config.FileName), nil
}

func newConfigInitCmd(g *globalFlags) *cobra.Command {
	var force, user bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the defaults",
		Long: `Write a config file holding every default, ready to edit.

The file goes to <data-dir>/config.yaml, or to the user config with --user.
An existing file is kept unless --force is given, in which case it is
backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configTarget(g, user)
			if err != nil {
				return err
			}
			backup, err := config.Init(path, force)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())
			if backup != "" {
				out.Statusf("💾", "Backed up previous config to %s", backup)
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the data-dir config")
	return cmd
}

func newConfigUpgradeCmd(g *globalFlags) *cobra.Command {
	var user bool
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Add settings introduced since a config file was written",
		Long: `Fill settings that an older config file leaves unset with their current
defaults. The file is backed up before it is rewritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := configTarget(g, user)
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())

			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			added := cfg.MergeNewDefaults()
			if len(added) == 0 {
				out.Success("Config is up to date")
				return nil
			}

			backup, err := config.BackupFile(path)
			if err != nil {
				return err
			}
			if err := cfg.WriteYAML(path); err != nil {
				return err
			}
			out.Statusf("💾", "Backed up previous config to %s", backup)
			out.Successf("Added %d setting(s) to %s:", len(added), path)
			for _, name := range added {
				out.Status("", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&user, "user", false, "Upgrade the user config instead of the data-dir config")
	return cmd
}

func newConfigPathCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print config and data locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			userCfg := config.GetUserConfigPath()
			if !config.UserConfigExists() {
				userCfg += " (not created)"
			}
			_, _ = fmt.Fprintf(w, "user config:  %s\n", userCfg)
			_, _ = fmt.Fprintf(w, "data config:  %s\n", filepath.Join(cfg.Paths.DataDir, config.FileName))
			_, _ = fmt.Fprintf(w, "data dir:     %s\n", cfg.Paths.DataDir)
			_, _ = fmt.Fprintf(w, "index:        %s\n", cfg.StorePath())
			_, _ = fmt.Fprintf(w, "thumbnails:   %s\n", cfg.ThumbnailDir())
			_, _ = fmt.Fprintf(w, "socket:       %s\n", cfg.SocketPath())
			_, _ = fmt.Fprintf(w, "logs:         %s\n", cfg.LogDir())
			return nil
		},
	}
}
