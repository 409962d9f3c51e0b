package crawl

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

// DefaultCallback turns a fetched artifact into a published record:
// parse, publish, journal. A parse or publish failure fails the
// artifact so the driver leaves it unmarked; journal failures only log
// because the audit trail must never block ingestion.
type DefaultCallback struct {
	parser      history.Parser
	publisher   history.Publisher
	journal     history.Journal
	clock       history.Clock
	topic       string
	site        string
	partitionID int
	logger      *zap.Logger
}

// NewCallback constructs the default processing chain. A nil journal
// disables auditing.
func NewCallback(
	parser history.Parser,
	publisher history.Publisher,
	journal history.Journal,
	clock history.Clock,
	topic string,
	site string,
	partitionID int,
	logger *zap.Logger,
) *DefaultCallback {
	if clock == nil {
		clock = history.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DefaultCallback{
		parser:      parser,
		publisher:   publisher,
		journal:     journal,
		clock:       clock,
		topic:       topic,
		site:        site,
		partitionID: partitionID,
		logger:      logger,
	}
}

// Process parses the artifact and publishes the record downstream.
func (c *DefaultCallback) Process(ctx context.Context, artifact history.Artifact, content []byte, conf []byte) error {
	start := c.clock.Now()

	record, err := c.parser.Parse(artifact, content, conf)
	if err != nil {
		c.writeJournal(ctx, artifact, start, history.JournalStatusFailed)
		return fmt.Errorf("parse %s: %w", artifact.JobID, err)
	}
	if record.JobID == "" {
		record.JobID = artifact.JobID
	}
	if record.AppID == "" {
		record.AppID = history.AppIDForJob(record.JobID)
	}
	record.Site = c.site

	if _, err := c.publisher.Publish(ctx, c.topic, record); err != nil {
		c.writeJournal(ctx, artifact, start, history.JournalStatusFailed)
		return fmt.Errorf("publish %s: %w", artifact.JobID, err)
	}

	c.writeJournal(ctx, artifact, start, history.JournalStatusProcessed)
	return nil
}

func (c *DefaultCallback) writeJournal(ctx context.Context, artifact history.Artifact, start time.Time, status string) {
	if c.journal == nil {
		return
	}
	now := c.clock.Now()
	entry := history.JournalEntry{
		JobID:       artifact.JobID,
		Site:        c.site,
		PartitionID: c.partitionID,
		Bucket:      history.Bucket(artifact.ModTime),
		ModTime:     artifact.ModTime,
		ProcessedAt: now,
		DurationMs:  now.UnixMilli() - start.UnixMilli(),
		Status:      status,
	}
	if err := c.journal.Record(ctx, entry); err != nil {
		c.logger.Warn("journal write failed",
			zap.String("job_id", artifact.JobID),
			zap.Error(err))
	}
}
