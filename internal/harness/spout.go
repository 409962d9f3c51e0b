package harness

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/crawl"
	"github.com/clustermon/jobhistory-crawler/internal/reconcile"
	"github.com/clustermon/jobhistory-crawler/internal/state"
)

// Spout is the worker's ingest lifecycle: Open prepares shared state,
// Crawl emits one round, Close releases the resources handed to it.
// Ack and Fail exist for callers that drive it like a streaming task;
// processed markers already make redelivery harmless, so both are
// no-ops.
type Spout struct {
	identity   Identity
	stateMgr   *state.Manager
	driver     *crawl.Driver
	reconciler *reconcile.Reconciler
	logger     *zap.Logger
	closers    []io.Closer
	opened     bool
}

// NewSpout wires a spout. A nil reconciler disables watermark
// publishing; closers are closed in order by Close.
func NewSpout(
	identity Identity,
	stateMgr *state.Manager,
	driver *crawl.Driver,
	reconciler *reconcile.Reconciler,
	logger *zap.Logger,
	closers ...io.Closer,
) *Spout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Spout{
		identity:   identity,
		stateMgr:   stateMgr,
		driver:     driver,
		reconciler: reconciler,
		logger:     logger,
		closers:    closers,
	}
}

// Open validates the identity and initializes the partition tree.
func (s *Spout) Open(ctx context.Context) error {
	if err := s.identity.Validate(); err != nil {
		return fmt.Errorf("invalid worker identity: %w", err)
	}
	if err := s.stateMgr.EnsurePartitions(ctx, s.identity.NumPartitions); err != nil {
		return fmt.Errorf("ensure partition tree: %w", err)
	}
	s.opened = true
	s.logger.Info("spout opened", zap.String("identity", s.identity.String()))
	return nil
}

// Crawl runs one round and, on success, one reconcile cycle.
func (s *Spout) Crawl(ctx context.Context) (crawl.Round, error) {
	if !s.opened {
		return crawl.Round{}, fmt.Errorf("spout is not open")
	}
	round, err := s.driver.Crawl(ctx)
	if err != nil {
		return round, err
	}
	if s.reconciler != nil {
		if err := s.reconciler.Reconcile(ctx); err != nil {
			return round, fmt.Errorf("reconcile watermark: %w", err)
		}
	}
	return round, nil
}

// Ack is a no-op.
func (s *Spout) Ack(string) {}

// Fail is a no-op; unmarked artifacts are retried by the next round.
func (s *Spout) Fail(string) {}

// Deactivate is a no-op; pausing is the runner's concern.
func (s *Spout) Deactivate() {}

// Close closes the attached resources. The first error wins, later
// ones are logged.
func (s *Spout) Close() error {
	var firstErr error
	for _, closer := range s.closers {
		if err := closer.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			} else {
				s.logger.Warn("close failed", zap.Error(err))
			}
		}
	}
	s.opened = false
	return firstErr
}
