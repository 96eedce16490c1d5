package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/mcp"
	"github.com/Aman-CERP/blockindex/internal/syncer"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		transport string
		addr      string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Serve the index to AI clients over MCP",
		Long: `Serve starts a Model Context Protocol server over the graph's index.

With the default stdio transport, stdout carries only protocol messages;
logs go to ~/.blockindex/logs/. Unless --watch=false is given, the index
is kept current while serving.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			root, err := opts.graphRoot(args)
			if err != nil {
				return err
			}

			return opts.withEngine(root, func(e *engine.Engine, cfg *config.Config) error {
				if watch {
					if err := e.StartSync(ctx, root, logSyncErrors); err != nil {
						return err
					}
					defer func() { _ = e.StopSync() }()
				}

				srv, err := mcp.NewServer(e, cfg.Search.MaxResults, slog.Default())
				if err != nil {
					return err
				}
				return srv.Serve(ctx, transport, addr)
			})
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")
	cmd.Flags().BoolVar(&watch, "watch", true, "Keep the index in sync while serving")

	return cmd
}

// logSyncErrors records sync failures in the log file; the terminal is not
// available while serving.
func logSyncErrors(ev syncer.Event) {
	if e, ok := ev.(syncer.SyncError); ok {
		slog.Warn("sync_error", slog.String("path", e.Path), slog.Any("error", e.Err))
	}
}
