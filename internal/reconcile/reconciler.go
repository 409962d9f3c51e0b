// Package reconcile publishes the cluster-wide low-water mark: the
// minimum watermark across all partitions, written to the monitoring
// backend so downstream consumers know how far every worker has read.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/backend"
	"github.com/clustermon/jobhistory-crawler/internal/history"
	"github.com/clustermon/jobhistory-crawler/internal/metrics"
	"github.com/clustermon/jobhistory-crawler/internal/state"
)

// Defaults for the publish retry loop.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 500 * time.Millisecond
)

// Config controls Reconciler behavior.
type Config struct {
	Site          string
	PartitionID   int
	NumPartitions int
	MaxRetries    int
	RetryDelay    time.Duration
}

// Reconciler runs after crawl rounds. Only partition zero publishes;
// every other partition's Reconcile is a no-op so the cluster emits a
// single consistent value.
type Reconciler struct {
	state   *state.Manager
	factory backend.Factory
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Reconciler.
func New(stateMgr *state.Manager, factory backend.Factory, cfg Config, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Reconciler{state: stateMgr, factory: factory, cfg: cfg, logger: logger}
}

// Reconcile reads every partition's watermark and publishes the
// minimum. A zero minimum means some partition has not committed yet,
// so there is nothing trustworthy to publish and the cycle is skipped.
// Publish failures retry up to MaxRetries extra attempts; after that
// the value is dropped with an error log and the next cycle recomputes.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	if r.cfg.PartitionID != 0 {
		return nil
	}
	if r.cfg.NumPartitions < 1 {
		return fmt.Errorf("reconcile needs at least one partition, have %d", r.cfg.NumPartitions)
	}

	watermarks, err := r.state.Watermarks(ctx, r.cfg.NumPartitions)
	if err != nil {
		return fmt.Errorf("read partition watermarks: %w", err)
	}
	min := watermarks[0]
	for _, w := range watermarks[1:] {
		if w < min {
			min = w
		}
	}
	if min == 0 {
		metrics.ObserveWatermarkPublish(r.cfg.Site, "skipped")
		r.logger.Debug("skipping watermark publish, a partition is still uncommitted")
		return nil
	}

	client, err := r.factory.Dial(ctx)
	if err != nil {
		metrics.ObserveWatermarkPublish(r.cfg.Site, "error")
		return fmt.Errorf("dial backend: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			r.logger.Warn("close backend client", zap.Error(closeErr))
		}
	}()

	entity := history.WatermarkEntity{
		Site:             r.cfg.Site,
		CurrentTimeStamp: min,
		Timestamp:        min,
	}

	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.RetryDelay):
			}
		}
		if err := client.Create(ctx, []history.WatermarkEntity{entity}); err != nil {
			lastErr = err
			r.logger.Warn("watermark publish attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}
		metrics.ObserveWatermarkPublish(r.cfg.Site, "published")
		r.logger.Info("published cluster watermark", zap.Int64("watermark", min))
		return nil
	}

	// Exhausted. The value is dropped; the next cycle recomputes from
	// the store, so nothing is lost beyond publish latency.
	metrics.ObserveWatermarkPublish(r.cfg.Site, "dropped")
	r.logger.Error("watermark publish abandoned after retries",
		zap.Int64("watermark", min),
		zap.Int("attempts", r.cfg.MaxRetries+1),
		zap.Error(lastErr))
	return nil
}
