// Package app initializes and holds the long-lived services of one
// crawler process, acting as the dependency container the CLI commands
// share. Coordination, the backend factory, and the running-job manager
// are built eagerly because every command needs them; the data-plane
// services (source, publisher, journal) are opened on demand so admin
// commands never dial services they do not use.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/backend"
	"github.com/clustermon/jobhistory-crawler/internal/config"
	"github.com/clustermon/jobhistory-crawler/internal/history"
	memoryjournal "github.com/clustermon/jobhistory-crawler/internal/journal/memory"
	postgresjournal "github.com/clustermon/jobhistory-crawler/internal/journal/postgres"
	"github.com/clustermon/jobhistory-crawler/internal/logging"
	"github.com/clustermon/jobhistory-crawler/internal/metrics"
	memorypublisher "github.com/clustermon/jobhistory-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/clustermon/jobhistory-crawler/internal/publisher/pubsub"
	"github.com/clustermon/jobhistory-crawler/internal/runningjob"
	gcssource "github.com/clustermon/jobhistory-crawler/internal/source/gcs"
	hdfssource "github.com/clustermon/jobhistory-crawler/internal/source/hdfs"
	localsource "github.com/clustermon/jobhistory-crawler/internal/source/local"
	"github.com/clustermon/jobhistory-crawler/internal/state"
	etcdstate "github.com/clustermon/jobhistory-crawler/internal/state/etcd"
	memorystate "github.com/clustermon/jobhistory-crawler/internal/state/memory"
)

type cleanup struct {
	name string
	fn   func() error
}

// App holds the shared services for one process. It is initialized once
// at startup; Close tears the services down in reverse order.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	store    state.Store
	locker   state.Locker
	stateMgr *state.Manager
	backend  *backend.RestFactory
	running  *runningjob.Manager
	etcd     *etcdstate.Store

	source    history.Source
	publisher history.Publisher
	journal   history.Journal

	cleanups []cleanup
}

// New builds the container from configuration, failing fast when a
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	switch cfg.Coordination.Provider {
	case config.CoordinationMemory:
		a.store = memorystate.NewStore()
		a.locker = memorystate.NewLocker(cfg.LockWait())
	case config.CoordinationEtcd:
		store, locker, err := etcdstate.Connect(ctx, etcdstate.Config{
			Endpoints:      cfg.Coordination.Endpoints,
			DialTimeout:    cfg.DialTimeout(),
			SessionTTLSecs: cfg.Coordination.SessionTTLSeconds,
			LockWait:       cfg.LockWait(),
			Username:       cfg.Coordination.Username,
			Password:       cfg.Coordination.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("connect coordination store: %w", err)
		}
		a.etcd = store
		a.store = store
		a.locker = locker
	default:
		return nil, fmt.Errorf("unknown coordination provider %q", cfg.Coordination.Provider)
	}
	// Lock sessions ride on the store's client, so the locker closes first.
	a.onClose("coordination store", a.store.Close)
	a.onClose("coordination locker", a.locker.Close)

	a.stateMgr = state.NewManager(a.store, a.locker, cfg.Coordination.Namespace, nil, logger.Named("state"))
	a.running = runningjob.New(a.store, a.locker, runningjob.Config{Site: cfg.Worker.Site}, logger.Named("running"))

	if cfg.Backend.Host != "" {
		a.backend = backend.NewFactory(backend.Config{
			Host:               cfg.Backend.Host,
			Port:               cfg.Backend.Port,
			Username:           cfg.Backend.Username,
			Password:           cfg.Backend.Password,
			BasePath:           cfg.Backend.BasePath,
			ReadTimeoutSeconds: cfg.Backend.ReadTimeoutSeconds,
		}, logger.Named("backend"))
	}

	logger.Info("application services initialized",
		zap.String("site", cfg.Worker.Site),
		zap.String("coordination", cfg.Coordination.Provider))
	return a, nil
}

// OpenSource dials the configured history source. The App owns it and
// closes it with the container; repeated calls return the same source.
func (a *App) OpenSource(ctx context.Context) (history.Source, error) {
	if a.source != nil {
		return a.source, nil
	}
	switch a.cfg.Source.Provider {
	case config.SourceLocal:
		src, err := localsource.New(localsource.Config{Root: a.cfg.Source.Local.Root})
		if err != nil {
			return nil, fmt.Errorf("open local source: %w", err)
		}
		a.source = src
	case config.SourceHDFS:
		src, err := hdfssource.New(hdfssource.Config{
			Addresses: a.cfg.Source.HDFS.Addresses,
			User:      a.cfg.Source.HDFS.User,
			DoneDir:   a.cfg.Source.HDFS.DoneDir,
		}, a.logger.Named("hdfs"))
		if err != nil {
			return nil, fmt.Errorf("open hdfs source: %w", err)
		}
		a.source = src
	case config.SourceGCS:
		client, err := cloudstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("dial gcs: %w", err)
		}
		src, err := gcssource.New(client, gcssource.Config{
			Bucket: a.cfg.Source.GCS.Bucket,
			Prefix: a.cfg.Source.GCS.Prefix,
		})
		if err != nil {
			client.Close() //nolint:errcheck // best-effort teardown
			return nil, fmt.Errorf("open gcs source: %w", err)
		}
		a.source = src
	default:
		return nil, fmt.Errorf("unknown source provider %q", a.cfg.Source.Provider)
	}
	a.onClose("source", a.source.Close)
	return a.source, nil
}

// OpenPublisher dials the configured record publisher.
func (a *App) OpenPublisher(ctx context.Context) (history.Publisher, error) {
	if a.publisher != nil {
		return a.publisher, nil
	}
	switch a.cfg.Publisher.Provider {
	case config.PublisherMemory:
		a.publisher = memorypublisher.New()
	case config.PublisherPubSub:
		client, err := pubsub.NewClient(ctx, a.cfg.Publisher.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("dial pubsub: %w", err)
		}
		pub := pubsubpublisher.New(client.Topic(a.cfg.Publisher.Topic))
		// Stop the topic before closing the client so buffered
		// publishes flush.
		a.onClose("pubsub client", client.Close)
		a.onClose("pubsub publisher", func() error { pub.Close(); return nil })
		a.publisher = pub
	default:
		return nil, fmt.Errorf("unknown publisher provider %q", a.cfg.Publisher.Provider)
	}
	return a.publisher, nil
}

// OpenJournal connects the configured processing journal.
func (a *App) OpenJournal(ctx context.Context) (history.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	switch a.cfg.Journal.Provider {
	case config.JournalMemory:
		a.journal = memoryjournal.New()
	case config.JournalPostgres:
		j, err := postgresjournal.New(ctx, postgresjournal.Config{
			DSN:      a.cfg.Journal.DSN,
			Table:    a.cfg.Journal.Table,
			MaxConns: int32(a.cfg.Journal.MaxConns),
		})
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		a.onClose("journal", func() error { j.Close(); return nil })
		a.journal = j
	default:
		return nil, fmt.Errorf("unknown journal provider %q", a.cfg.Journal.Provider)
	}
	return a.journal, nil
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetLogger returns the shared logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetStateManager returns the crawl-state manager.
func (a *App) GetStateManager() *state.Manager {
	return a.stateMgr
}

// GetRunningManager returns the running-job record manager.
func (a *App) GetRunningManager() *runningjob.Manager {
	return a.running
}

// GetBackendFactory returns the monitoring backend factory, or nil when
// no backend host is configured.
func (a *App) GetBackendFactory() backend.Factory {
	if a.backend == nil {
		return nil
	}
	return a.backend
}

// GetEtcdClient returns the shared etcd client, or nil when the
// coordination provider is not etcd.
func (a *App) GetEtcdClient() *clientv3.Client {
	if a.etcd == nil {
		return nil
	}
	return a.etcd.Client()
}

func (a *App) onClose(name string, fn func() error) {
	a.cleanups = append(a.cleanups, cleanup{name: name, fn: fn})
}

// Close shuts down the held services in reverse initialization order
// and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		c := a.cleanups[i]
		if err := c.fn(); err != nil {
			a.logger.Warn("close "+c.name, zap.Error(err))
		}
	}
	a.cleanups = nil
	a.logger.Sync() //nolint:errcheck // best-effort flush
}
