// Package cmd provides the CLI commands for blockindex.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/blockindex/internal/config"
	"github.com/Aman-CERP/blockindex/internal/engine"
	"github.com/Aman-CERP/blockindex/internal/logging"
	"github.com/Aman-CERP/blockindex/internal/profiling"
	"github.com/Aman-CERP/blockindex/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	graph   string
	dataDir string
	debug   bool
	profile profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the blockindex CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "blockindex",
		Short: "Index and search outline-style markdown notes",
		Long: `blockindex imports a graph of outline notes (pages/ and journals/),
keeps a structured store of pages and blocks, and maintains keyword and
vector indices over them.

Import once with 'blockindex import', keep the index current with
'blockindex sync', and query it from the CLI or over MCP with
'blockindex serve'.`,
		Version:      version.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.start(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return opts.stop()
		},
	}
	cmd.SetVersionTemplate("blockindex version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&opts.graph, "graph", "g", ".", "Graph directory holding pages/ and journals/")
	cmd.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Directory for the database and indices (default <graph>/.blockindex)")
	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.blockindex/logs/")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newImportCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newURLCmd(opts))
	cmd.AddCommand(newLinksCmd(opts))
	cmd.AddCommand(newRefsCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// start installs the file logger and begins any requested profiles. The
// serve command owns stdout, so its logger never writes to the terminal.
func (o *globalOptions) start(cmd *cobra.Command) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if o.debug {
		logCfg.Level = "debug"
	}

	if cmd.Name() == "serve" {
		cleanup, err := logging.SetupServeMode(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		o.loggingCleanup = cleanup
	} else {
		logger, cleanup, err := logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		o.loggingCleanup = cleanup
		slog.SetDefault(logger)
	}
	slog.Debug("command_started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.Version))

	if o.profile.Enabled() {
		session, err := profiling.Start(o.profile)
		if err != nil {
			return err
		}
		o.profiler = session
	}
	return nil
}

func (o *globalOptions) stop() error {
	err := o.profiler.Stop()
	o.profiler = nil
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	return err
}

// graphRoot resolves the graph directory: the first positional argument
// when given, else --graph.
func (o *globalOptions) graphRoot(args []string) (string, error) {
	path := o.graph
	if len(args) > 0 {
		path = args[0]
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return abs, nil
}

// loadConfig reads the configuration for root and applies --data-dir.
func (o *globalOptions) loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.Storage.DataDir = o.dataDir
	}
	return cfg, nil
}

// openEngine opens the engine for root. Callers must Close it.
func (o *globalOptions) openEngine(root string) (*engine.Engine, *config.Config, error) {
	cfg, err := o.loadConfig(root)
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.Open(cfg, root, engine.WithLogger(slog.Default()))
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

// withEngine opens the engine for root, runs fn and closes the engine.
func (o *globalOptions) withEngine(root string, fn func(*engine.Engine, *config.Config) error) error {
	e, cfg, err := o.openEngine(root)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			slog.Warn("engine_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(e, cfg)
}

// commandContext returns ctx, defaulting to Background for commands run
// without one in tests.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
