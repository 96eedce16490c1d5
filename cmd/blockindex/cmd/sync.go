package cmd

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/output"
	"github.com/Aman-CERP/blockindex/internal/syncer"
)

func newSyncCmd(opts *globalOptions) *cobra.Command {
	var (
		once       bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "sync [path]",
		Short: "Keep the index in step with the graph",
		Long: `Sync watches the graph and applies every created, changed, renamed
or deleted page file to the store and the indices until interrupted.

With --once it instead reconciles the index with a single full scan and
exits. Orphaned pages left by an interrupted run are removed first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := opts.graphRoot(args)
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				out = output.NewJSON(cmd.OutOrStdout())
			}

			return opts.withEngine(root, func(e *engine.Engine, _ *config.Config) error {
				if once {
					summary, err := e.SyncOnce(ctx, root)
					if err != nil {
						return err
					}
					return out.SyncSummary(summary)
				}

				if err := e.StartSync(ctx, root, syncPrinter(out)); err != nil {
					return err
				}
				out.Statusf("👀", "Watching %s (Ctrl+C to stop)", root)
				<-ctx.Done()
				return e.StopSync()
			})
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "Reconcile with one full scan and exit")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the --once summary as JSON")

	return cmd
}

// syncPrinter reports live changes, one line each. Events arrive from
// several goroutines.
func syncPrinter(out *output.Writer) syncer.Listener {
	var mu sync.Mutex
	return func(ev syncer.Event) {
		mu.Lock()
		defer mu.Unlock()
		switch e := ev.(type) {
		case syncer.FileCreated:
			out.Statusf("+", "%s", e.Path)
		case syncer.FileUpdated:
			if e.Renamed {
				out.Statusf("→", "%s (renamed)", e.Path)
			} else {
				out.Statusf("~", "%s", e.Path)
			}
		case syncer.FileDeleted:
			out.Statusf("-", "%s", e.Path)
		case syncer.SyncError:
			if e.Path == "" {
				out.Errorf("%v", e.Err)
			} else {
				out.Errorf("%s: %v", e.Path, e.Err)
			}
		}
	}
}
