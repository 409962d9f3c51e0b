package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/api"
	"github.com/clustermon/jobhistory-crawler/internal/app"
	"github.com/clustermon/jobhistory-crawler/internal/config"
	"github.com/clustermon/jobhistory-crawler/internal/crawl"
	"github.com/clustermon/jobhistory-crawler/internal/harness"
	"github.com/clustermon/jobhistory-crawler/internal/logging"
	"github.com/clustermon/jobhistory-crawler/internal/parse"
	"github.com/clustermon/jobhistory-crawler/internal/partition"
	"github.com/clustermon/jobhistory-crawler/internal/reconcile"
)

const shutdownTimeout = 10 * time.Second

// newCrawlCmd creates the 'crawl' subcommand, the long-running worker
// process.
func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs the crawl worker loop",
		Long: `Joins the worker roster, takes ownership of one partition of the job
space, and crawls history artifacts until interrupted. The ops HTTP
server runs alongside the loop.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	container, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := container.GetConfig()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	roster, err := buildRoster(container)
	if err != nil {
		return err
	}
	identity, err := roster.Join(ctx)
	if err != nil {
		return fmt.Errorf("join worker roster: %w", err)
	}
	defer func() {
		leaveCtx, leaveCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer leaveCancel()
		if leaveErr := roster.Leave(leaveCtx); leaveErr != nil {
			container.GetLogger().Warn("leave worker roster", zap.Error(leaveErr))
		}
	}()

	logger := logging.WithWorker(container.GetLogger(),
		identity.Site, identity.PartitionID, identity.NumPartitions)

	spout, err := buildSpout(ctx, container, identity, logger)
	if err != nil {
		return err
	}
	runner := harness.NewRunner(spout, cfg.IdleDelay(), logger.Named("runner"))

	apiServer := api.NewServer(identity, container.GetStateManager(), container.GetRunningManager(), logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("ops server started", zap.Int("port", cfg.Server.Port))
		if srvErr := srv.ListenAndServe(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			logger.Error("ops server error", zap.Error(srvErr))
			cancel()
		}
	}()

	runErr := runner.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("ops server shutdown", zap.Error(err))
	}
	logger.Info("crawl worker stopped")
	return runErr
}

// buildRoster picks the partition assignment strategy. Static placement
// reads the partition from config; roster placement derives it from the
// worker's position among live members.
func buildRoster(container *app.App) (harness.Roster, error) {
	cfg := container.GetConfig()
	switch cfg.Worker.Assignment {
	case config.AssignmentStatic:
		return harness.NewStaticRoster(harness.Identity{
			Site:          cfg.Worker.Site,
			PartitionID:   cfg.Worker.PartitionID,
			NumPartitions: cfg.Worker.NumPartitions,
		}), nil
	case config.AssignmentRoster:
		client := container.GetEtcdClient()
		if client == nil {
			return nil, errors.New("roster assignment requires the etcd coordination store")
		}
		return harness.NewLeaseRoster(
			client,
			cfg.Coordination.Namespace,
			cfg.Worker.Role,
			"",
			cfg.Worker.Site,
			cfg.Coordination.SessionTTLSeconds,
			container.GetLogger().Named("roster"),
		), nil
	default:
		return nil, fmt.Errorf("unknown assignment mode %q", cfg.Worker.Assignment)
	}
}

// buildSpout assembles the crawl pipeline for the worker's identity.
func buildSpout(ctx context.Context, container *app.App, identity harness.Identity, logger *zap.Logger) (*harness.Spout, error) {
	cfg := container.GetConfig()

	source, err := container.OpenSource(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := container.OpenPublisher(ctx)
	if err != nil {
		return nil, err
	}
	journal, err := container.OpenJournal(ctx)
	if err != nil {
		return nil, err
	}

	filter, err := partition.NewFilter(nil, identity.PartitionID, identity.NumPartitions)
	if err != nil {
		return nil, fmt.Errorf("build partition filter: %w", err)
	}

	callback := crawl.NewCallback(
		parse.NewJSONSummary(cfg.Worker.ConfKeys...),
		publisher,
		journal,
		nil,
		cfg.Publisher.Topic,
		identity.Site,
		identity.PartitionID,
		logger.Named("callback"),
	)
	driver := crawl.New(source, callback, container.GetStateManager(), filter, nil, crawl.Config{
		Site:          identity.Site,
		PartitionID:   identity.PartitionID,
		Lookback:      cfg.Lookback(),
		RetentionDays: cfg.Worker.RetentionDays,
	}, logger.Named("crawl"))

	var reconciler *reconcile.Reconciler
	if factory := container.GetBackendFactory(); factory != nil {
		reconciler = reconcile.New(container.GetStateManager(), factory, reconcile.Config{
			Site:          identity.Site,
			PartitionID:   identity.PartitionID,
			NumPartitions: identity.NumPartitions,
		}, logger.Named("reconcile"))
	}

	return harness.NewSpout(identity, container.GetStateManager(), driver, reconciler, logger.Named("spout")), nil
}
