// Package cmd defines and implements the CLI commands for the
// jobhistoryd executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clustermon/jobhistory-crawler/internal/app"
	"github.com/clustermon/jobhistory-crawler/internal/config"
)

var cfgFile string

// appKeyType is the key for storing the service container in the
// command context.
type appKeyType string

const appKey appKeyType = "app"

// newRootCmd creates and configures the root command. The persistent
// hooks build the service container before a subcommand runs and tear
// it down afterwards.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobhistoryd",
		Short: "A partitioned crawler for MapReduce job history.",
		Long: `jobhistoryd watches a cluster's job history archive, parses each
finished job exactly once across a fleet of workers, and publishes one
record per job downstream. Crawl progress lives in a shared
coordination store, so workers can crash and resume without re-emitting
jobs.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			container, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, container))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if container, ok := cmd.Context().Value(appKey).(*app.App); ok && container != nil {
				container.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML config file (environment variables apply on top)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newRunningCmd())
	cmd.AddCommand(newPruneCmd())
	cmd.AddCommand(newAppsCmd())

	return cmd
}

// resolveApp fetches the container placed in the context by the root
// command's PersistentPreRunE.
func resolveApp(ctx context.Context) (*app.App, error) {
	container, ok := ctx.Value(appKey).(*app.App)
	if !ok || container == nil {
		return nil, errors.New("application services not initialized")
	}
	return container, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the
// running command's context for a graceful drain.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
