package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/blockindex/configs"
	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/output"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Configuration is read, later sources winning, from the defaults, the
user config file, .blockindex.yaml in the graph, the graph's .env file
and BLOCKINDEX_* environment variables.`,
	}

	cmd.AddCommand(newConfigInitCmd(opts))
	cmd.AddCommand(newConfigShowCmd(opts))
	cmd.AddCommand(newConfigPathCmd())
	return cmd
}

func newConfigInitCmd(opts *globalOptions) *cobra.Command {
	var (
		force bool
		local bool
	)

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a configuration template",
		Long: `Writes the user configuration template, or with --local the graph
template (.blockindex.yaml) into the graph root.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(cmd.OutOrStdout())
			if local {
				root, err := opts.graphRoot(args)
				if err != nil {
					return err
				}
				path := filepath.Join(root, configs.GraphConfigName)
				if _, err := os.Stat(path); err == nil && !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				if err := writeTemplate(path, configs.GraphConfigTemplate); err != nil {
					return err
				}
				out.Successf("Wrote %s", path)
				return nil
			}

			path := config.GetUserConfigPath()
			if config.UserConfigExists() {
				if !force {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
				backup, err := config.BackupUserConfig()
				if err != nil {
					return err
				}
				out.Statusf("💾", "Backed up existing config to %s", backup)
			}
			if err := writeTemplate(path, configs.UserConfigTemplate); err != nil {
				return err
			}
			out.Successf("Wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config (the user config is backed up first)")
	cmd.Flags().BoolVar(&local, "local", false, "Write the graph config instead of the user config")
	return cmd
}

func writeTemplate(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show [path]",
		Short: "Print the effective configuration for a graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := opts.graphRoot(args)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig(root)
			if err != nil {
				return err
			}
			if jsonOutput {
				return output.NewJSON(cmd.OutOrStdout()).JSON(cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
