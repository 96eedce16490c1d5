package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/output"
	"github.com/Aman-CERP/blockindex/internal/ui"
)

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		noTUI       bool
		jsonOutput  bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "import [path]",
		Short: "Import every page of a graph",
		Long: `Import parses every markdown file under pages/ and journals/ and
writes it to the structured store and the search indices.

Files whose content has not changed since the last import are skipped,
so running import again is cheap. Press Ctrl+C to stop; files already
imported stay imported.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := opts.graphRoot(args)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig(root)
			if err != nil {
				return err
			}
			if concurrency > 0 {
				cfg.Import.Concurrency = concurrency
			}

			e, err := engine.Open(cfg, root, engine.WithLogger(slog.Default()))
			if err != nil {
				return err
			}
			defer func() { _ = e.Close() }()

			if jsonOutput {
				summary, err := e.ImportDirectory(ctx, root, nil)
				if summary != nil {
					if werr := output.NewJSON(cmd.OutOrStdout()).JSON(summary); werr != nil {
						return werr
					}
				}
				return err
			}

			renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
				ui.WithForcePlain(noTUI),
				ui.WithNoColor(ui.DetectNoColor()),
				ui.WithGraphDir(root),
			))
			if err := renderer.Start(ctx); err != nil {
				return fmt.Errorf("failed to start progress display: %w", err)
			}
			summary, err := e.ImportDirectory(ctx, root, ui.ImportListener(renderer))
			if serr := renderer.Stop(); serr != nil {
				slog.Warn("renderer_stop_failed", slog.String("error", serr.Error()))
			}
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d files failed to import", summary.Failed, summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noTUI, "no-tui", false, "Disable TUI mode, use plain text output")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the import summary as JSON")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 0,
		fmt.Sprintf("Files processed at once (default from config, %d)", config.NewConfig().Import.Concurrency))

	return cmd
}
