// Package crawl runs the per-worker ingestion rounds: list new history
// artifacts, process the owned ones, and advance the partition
// watermark.
package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/history"
	"github.com/clustermon/jobhistory-crawler/internal/metrics"
	"github.com/clustermon/jobhistory-crawler/internal/partition"
	"github.com/clustermon/jobhistory-crawler/internal/state"
)

// DefaultLookback is how far behind the stored watermark a round
// re-lists. Artifacts that failed processing stay unmarked and are
// picked up again while they remain inside this window.
const DefaultLookback = 24 * time.Hour

// Config controls Driver behavior.
type Config struct {
	Site          string
	PartitionID   int
	Lookback      time.Duration
	RetentionDays int
}

// Round summarizes one crawl round. Watermark is the highest
// modification time confirmed this round, counting marker-skipped
// artifacts so a crash between marking and the watermark write cannot
// pin the partition; Processed counts only newly processed artifacts.
type Round struct {
	Watermark int64
	Processed int
	Failed    int
	Skipped   int
}

// Driver executes one bounded crawl round at a time. It is not safe
// for concurrent use; the harness invokes rounds serially.
type Driver struct {
	source   history.Source
	callback history.Callback
	state    *state.Manager
	filter   *partition.Filter
	clock    history.Clock
	cfg      Config
	logger   *zap.Logger

	lastPrune string
}

// New constructs a Driver.
func New(
	source history.Source,
	callback history.Callback,
	stateMgr *state.Manager,
	filter *partition.Filter,
	clock history.Clock,
	cfg Config,
	logger *zap.Logger,
) *Driver {
	if clock == nil {
		clock = history.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = DefaultLookback
	}
	return &Driver{
		source:   source,
		callback: callback,
		state:    stateMgr,
		filter:   filter,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Crawl performs one round: list artifacts modified since the stored
// watermark minus the lookback, process the ones this partition owns
// and has not marked yet, then advance the watermark to the highest
// modification time confirmed processed. Per-artifact callback failures
// are logged and skipped so one bad artifact cannot stall the round;
// the artifact stays unmarked and is retried while inside the lookback
// window. List, fetch, and state errors end the round early and the
// next round retries.
func (d *Driver) Crawl(ctx context.Context) (Round, error) {
	start := d.clock.Now()
	var round Round

	stored, err := d.state.ReadWatermark(ctx, d.cfg.PartitionID)
	if err != nil {
		metrics.ObserveCrawlRound(d.cfg.Site, "error", d.clock.Now().Sub(start))
		return round, err
	}

	since := stored - d.cfg.Lookback.Milliseconds()
	if since < 0 {
		since = 0
	}
	artifacts, err := d.source.List(ctx, since)
	if err != nil {
		d.refresh(ctx)
		metrics.ObserveCrawlRound(d.cfg.Site, "error", d.clock.Now().Sub(start))
		return round, fmt.Errorf("list artifacts: %w", err)
	}

	for _, artifact := range artifacts {
		if err := ctx.Err(); err != nil {
			return round, err
		}
		if artifact.JobID == "" || !d.filter.Owns(artifact.JobID) {
			continue
		}

		done, err := d.state.IsJobProcessed(ctx, artifact.JobID, artifact.ModTime)
		if err != nil {
			metrics.ObserveCrawlRound(d.cfg.Site, "error", d.clock.Now().Sub(start))
			return round, err
		}
		if done {
			round.Skipped++
			metrics.ObserveArtifact(d.cfg.Site, "skipped", 0)
			if artifact.ModTime > round.Watermark {
				round.Watermark = artifact.ModTime
			}
			continue
		}

		content, err := d.source.Fetch(ctx, artifact.Path)
		if err != nil {
			d.refresh(ctx)
			metrics.ObserveCrawlRound(d.cfg.Site, "error", d.clock.Now().Sub(start))
			return round, fmt.Errorf("fetch %s: %w", artifact.Path, err)
		}
		var conf []byte
		if artifact.ConfPath != "" {
			conf, err = d.source.Fetch(ctx, artifact.ConfPath)
			if err != nil {
				d.refresh(ctx)
				metrics.ObserveCrawlRound(d.cfg.Site, "error", d.clock.Now().Sub(start))
				return round, fmt.Errorf("fetch conf %s: %w", artifact.ConfPath, err)
			}
		}

		if err := d.callback.Process(ctx, artifact, content, conf); err != nil {
			round.Failed++
			metrics.ObserveArtifact(d.cfg.Site, "failed", 0)
			d.logger.Warn("artifact processing failed",
				zap.String("job_id", artifact.JobID),
				zap.String("path", artifact.Path),
				zap.Error(err))
			continue
		}

		if err := d.state.MarkJobProcessed(ctx, artifact.JobID, artifact.ModTime); err != nil {
			metrics.ObserveCrawlRound(d.cfg.Site, "error", d.clock.Now().Sub(start))
			return round, err
		}
		round.Processed++
		metrics.ObserveArtifact(d.cfg.Site, "processed", len(content)+len(conf))
		if artifact.ModTime > round.Watermark {
			round.Watermark = artifact.ModTime
		}
	}

	if round.Watermark > stored {
		if err := d.state.WriteWatermark(ctx, d.cfg.PartitionID, round.Watermark); err != nil {
			metrics.ObserveCrawlRound(d.cfg.Site, "error", d.clock.Now().Sub(start))
			return round, err
		}
		metrics.SetPartitionWatermark(d.cfg.Site, d.cfg.PartitionID, round.Watermark)
	}

	d.maybePrune(ctx)

	outcome := "ok"
	if round.Processed == 0 && round.Failed == 0 {
		outcome = "empty"
	}
	metrics.ObserveCrawlRound(d.cfg.Site, outcome, d.clock.Now().Sub(start))
	d.logger.Debug("crawl round finished",
		zap.Int("listed", len(artifacts)),
		zap.Int("processed", round.Processed),
		zap.Int("failed", round.Failed),
		zap.Int("skipped", round.Skipped),
		zap.Int64("watermark", round.Watermark))
	return round, nil
}

func (d *Driver) refresh(ctx context.Context) {
	if err := d.source.Refresh(ctx); err != nil {
		d.logger.Warn("source refresh failed", zap.Error(err))
	}
}

// maybePrune drops processed-marker buckets outside the retention
// window, at most once per UTC day. Prune failures only log: retention
// is housekeeping and the next day retries.
func (d *Driver) maybePrune(ctx context.Context) {
	if d.cfg.RetentionDays <= 0 {
		return
	}
	today := history.BucketOf(d.clock.Now())
	if today == d.lastPrune {
		return
	}
	pruned, err := d.state.PruneOlderThan(ctx, d.cfg.RetentionDays)
	if err != nil {
		d.logger.Warn("retention prune failed", zap.Error(err))
		return
	}
	d.lastPrune = today
	metrics.ObserveMarkersPruned(pruned)
	if pruned > 0 {
		d.logger.Info("pruned processed-marker buckets", zap.Int("buckets", pruned))
	}
}
