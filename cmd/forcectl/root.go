package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ForceView/internal/backend"
	"ForceView/internal/config"
	"ForceView/internal/logging"
	"ForceView/internal/subcase"
	"ForceView/internal/table"
)

var (
	backendURL string
	verbose    bool

	cfg    config.Config
	logger zerolog.Logger
	client *backend.Client
)

var rootCmd = &cobra.Command{
	Use:   "forcectl",
	Short: "Command line front end for the force extraction backend",
	Long: `forcectl - upload FEM input files, run the force extractor and
browse the extracted nodes, SPCs, SPC clusters and MPCs.

The backend address is read from FORCEVIEW_BACKEND_URL (or a .env file)
and can be overridden with --backend.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if backendURL != "" {
			cfg.BackendURL = backendURL
		}
		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger = logging.New(level, true, cmd.ErrOrStderr())
		client = backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, cfg.DisconnectTimeout, logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", "", "Backend base URL (default from FORCEVIEW_BACKEND_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every backend request")
}

// reportingContext prints every reported backend failure to w.
func reportingContext(ctx context.Context, w io.Writer) context.Context {
	return backend.WithReporter(ctx, backend.ReporterFunc(func(msg string) {
		fmt.Fprintln(w, "error:", msg)
	}))
}

// newTable builds the controller for one of the four entity tables.
func newTable(name string, cache *subcase.Cache) (table.Table, error) {
	switch name {
	case "nodes":
		return table.NewController(table.NodeEntity(client), cache), nil
	case "spcs":
		return table.NewController(table.SPCEntity(client), cache), nil
	case "spcclusters":
		return table.NewController(table.SPCClusterEntity(table.SPCClusterSource(client.SPCClusters)), cache), nil
	case "mpcs":
		return table.NewController(table.MPCEntity(table.MPCSource(client.MPCs)), cache), nil
	}
	return nil, fmt.Errorf("unknown table %q (want nodes, spcs, spcclusters or mpcs)", name)
}
