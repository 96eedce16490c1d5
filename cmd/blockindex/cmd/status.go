package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/ui"
)

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [path]",
		Short: "Show index statistics",
		Long: `Status reports how many pages, blocks and files are indexed, which
search backends are active, how much disk the index uses, and whether
the store and the file mappings disagree.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := opts.graphRoot(args)
			if err != nil {
				return err
			}
			return opts.withEngine(root, func(e *engine.Engine, _ *config.Config) error {
				st, err := e.Status(commandContext(cmd))
				if err != nil {
					return err
				}
				r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
				if jsonOutput {
					return r.RenderJSON(st)
				}
				return r.Render(st)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
