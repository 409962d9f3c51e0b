// Package runningjob tracks in-flight applications in the coordination
// store so a restarted worker can pick up jobs that were mid-flight.
// Records live under <root>/<site>/<appID>/<jobID>; every operation on
// an application's subtree runs inside that application's distributed
// lock, so concurrent workers deleting and recovering the same app
// serialize instead of corrupting each other.
package runningjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clustermon/jobhistory-crawler/internal/metrics"
	"github.com/clustermon/jobhistory-crawler/internal/state"
)

// Defaults for record placement and recovery fan-out.
const (
	DefaultRoot               = "/apps/mr/running"
	DefaultLockRoot           = "/locks/running"
	DefaultRecoverParallelism = 4
	unlockTimeout             = 5 * time.Second
)

// Config controls Manager behavior.
type Config struct {
	Root               string
	LockRoot           string
	Site               string
	RecoverParallelism int
}

// Manager owns the running-job record tree for one site.
type Manager struct {
	store  state.Store
	locker state.Locker
	cfg    Config
	logger *zap.Logger
}

// New constructs a Manager.
func New(store state.Store, locker state.Locker, cfg Config, logger *zap.Logger) *Manager {
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.LockRoot == "" {
		cfg.LockRoot = DefaultLockRoot
	}
	if cfg.RecoverParallelism <= 0 {
		cfg.RecoverParallelism = DefaultRecoverParallelism
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, locker: locker, cfg: cfg, logger: logger}
}

func (m *Manager) sitePrefix() string {
	return path.Join(m.cfg.Root, m.cfg.Site) + "/"
}

func (m *Manager) appPrefix(appID string) string {
	return path.Join(m.cfg.Root, m.cfg.Site, appID) + "/"
}

func (m *Manager) recordKey(appID, jobID string) string {
	return path.Join(m.cfg.Root, m.cfg.Site, appID, jobID)
}

func (m *Manager) lockName(appID string) string {
	return path.Join(m.cfg.LockRoot, m.cfg.Site, appID)
}

// withAppLock runs fn while holding the application's lock. The lock is
// released on every exit path with a short background context so a
// caller's canceled context cannot leak the hold; crash release is the
// store session's job.
func (m *Manager) withAppLock(ctx context.Context, appID string, fn func(context.Context) error) error {
	start := time.Now()
	unlock, err := m.locker.Acquire(ctx, m.lockName(appID))
	if err != nil {
		if errors.Is(err, state.ErrLockTimeout) {
			metrics.ObserveLockTimeout()
		}
		return fmt.Errorf("acquire lock for app %s: %w", appID, err)
	}
	metrics.ObserveLockWait("running_app", time.Since(start))
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), unlockTimeout)
		defer cancel()
		if unlockErr := unlock(releaseCtx); unlockErr != nil {
			m.logger.Warn("release app lock",
				zap.String("app_id", appID),
				zap.Error(unlockErr))
		}
	}()
	return fn(ctx)
}

// Update writes the snapshot for one running job.
func (m *Manager) Update(ctx context.Context, appID, jobID string, snapshot []byte) error {
	err := m.withAppLock(ctx, appID, func(ctx context.Context) error {
		return m.store.Put(ctx, m.recordKey(appID, jobID), snapshot)
	})
	if err != nil {
		metrics.ObserveRunningRecordOp("update", "error")
		return err
	}
	metrics.ObserveRunningRecordOp("update", "ok")
	return nil
}

// Delete removes one job's record. Deleting a record someone else
// already removed is a success, which makes concurrent cleanup safe.
func (m *Manager) Delete(ctx context.Context, appID, jobID string) error {
	err := m.withAppLock(ctx, appID, func(ctx context.Context) error {
		return m.store.Delete(ctx, m.recordKey(appID, jobID))
	})
	if err != nil {
		metrics.ObserveRunningRecordOp("delete", "error")
		return err
	}
	metrics.ObserveRunningRecordOp("delete", "ok")
	return nil
}

// DeleteApp removes an application's whole subtree.
func (m *Manager) DeleteApp(ctx context.Context, appID string) error {
	err := m.withAppLock(ctx, appID, func(ctx context.Context) error {
		_, deleteErr := m.store.DeletePrefix(ctx, m.appPrefix(appID))
		return deleteErr
	})
	if err != nil {
		metrics.ObserveRunningRecordOp("delete_app", "error")
		return err
	}
	metrics.ObserveRunningRecordOp("delete_app", "ok")
	return nil
}

// RecoverApp reads every job snapshot of one application. An
// application that vanished between listing and locking yields an
// empty map, not an error: concurrent deletion is normal during
// recovery.
func (m *Manager) RecoverApp(ctx context.Context, appID string) (map[string]json.RawMessage, error) {
	jobs := make(map[string]json.RawMessage)
	err := m.withAppLock(ctx, appID, func(ctx context.Context) error {
		entries, listErr := m.store.List(ctx, m.appPrefix(appID))
		if listErr != nil {
			return listErr
		}
		for key, value := range entries {
			jobID := path.Base(key)
			snapshot := make(json.RawMessage, len(value))
			copy(snapshot, value)
			jobs[jobID] = snapshot
		}
		return nil
	})
	if err != nil {
		metrics.ObserveRunningRecordOp("recover_app", "error")
		return nil, err
	}
	metrics.ObserveRunningRecordOp("recover_app", "ok")
	return jobs, nil
}

// Apps lists the application IDs that currently have records.
func (m *Manager) Apps(ctx context.Context) ([]string, error) {
	entries, err := m.store.List(ctx, m.sitePrefix())
	if err != nil {
		return nil, fmt.Errorf("list running apps: %w", err)
	}
	seen := make(map[string]struct{})
	var apps []string
	for key := range entries {
		rest := strings.TrimPrefix(key, m.sitePrefix())
		appID, _, ok := strings.Cut(rest, "/")
		if !ok {
			continue
		}
		if _, dup := seen[appID]; dup {
			continue
		}
		seen[appID] = struct{}{}
		apps = append(apps, appID)
	}
	return apps, nil
}

// Recover rebuilds the full running-job view across all applications.
// Applications are scanned with bounded parallelism, each under its own
// lock; the merged result waits for every scan.
func (m *Manager) Recover(ctx context.Context) (map[string]map[string]json.RawMessage, error) {
	apps, err := m.Apps(ctx)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	result := make(map[string]map[string]json.RawMessage, len(apps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.RecoverParallelism)
	for _, appID := range apps {
		g.Go(func() error {
			jobs, appErr := m.RecoverApp(gctx, appID)
			if appErr != nil {
				return appErr
			}
			if len(jobs) == 0 {
				// Deleted while we were scanning. Skip it.
				return nil
			}
			mu.Lock()
			result[appID] = jobs
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		metrics.ObserveRunningRecordOp("recover", "error")
		return nil, err
	}
	metrics.ObserveRunningRecordOp("recover", "ok")
	m.logger.Info("recovered running-job records", zap.Int("apps", len(result)))
	return result, nil
}
