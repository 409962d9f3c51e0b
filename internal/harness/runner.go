package harness

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultIdleDelay is the pause between rounds when a round confirmed
// nothing or failed.
const DefaultIdleDelay = time.Second

// Runner drives a Spout until its context finishes. Round errors are
// logged and the loop continues; only a failed Open is fatal.
type Runner struct {
	spout     *Spout
	idleDelay time.Duration
	logger    *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(spout *Spout, idleDelay time.Duration, logger *zap.Logger) *Runner {
	if idleDelay <= 0 {
		idleDelay = DefaultIdleDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{spout: spout, idleDelay: idleDelay, logger: logger}
}

// Run opens the spout and crawls in a loop. A round that processed new
// work rolls straight into the next one; empty, skip-only, and failed
// rounds wait out the idle delay first. Returns nil on context
// cancellation.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.spout.Open(ctx); err != nil {
		return fmt.Errorf("open spout: %w", err)
	}
	defer func() {
		if err := r.spout.Close(); err != nil {
			r.logger.Warn("spout close failed", zap.Error(err))
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		round, err := r.spout.Crawl(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			r.logger.Error("crawl round failed", zap.Error(err))
		case round.Processed > 0:
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.idleDelay):
		}
	}
}
