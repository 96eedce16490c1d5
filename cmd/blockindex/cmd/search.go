package cmd

import (
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	mode       string
	jsonOutput bool
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var so searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search blocks",
		Long: `Search finds blocks by keyword (default) or by meaning (--mode vector).
Each hit shows its page and the blocks it is nested under.

Examples:
  blockindex search soil
  blockindex search "raised beds" --limit 5
  blockindex search "what to plant in spring" --mode vector --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			root, err := opts.graphRoot(nil)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if so.jsonOutput {
				out = output.NewJSON(cmd.OutOrStdout())
			}

			return opts.withEngine(root, func(e *engine.Engine, _ *config.Config) error {
				start := time.Now()
				hits, err := e.Search(commandContext(cmd), q, engine.SearchMode(so.mode), so.limit)
				if err != nil {
					return err
				}
				slog.Info("search_completed",
					slog.String("query", q),
					slog.String("mode", so.mode),
					slog.Int("results", len(hits)),
					slog.Duration("duration", time.Since(start)))
				return out.Hits(q, hits)
			})
		},
	}

	cmd.Flags().IntVarP(&so.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&so.mode, "mode", "m", string(engine.SearchText), "Search mode: text, vector")
	cmd.Flags().BoolVar(&so.jsonOutput, "json", false, "Output as JSON")

	return cmd
}
