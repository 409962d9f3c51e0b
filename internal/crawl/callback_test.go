package crawl

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clustermon/jobhistory-crawler/internal/history"
	journalmem "github.com/clustermon/jobhistory-crawler/internal/journal/memory"
	"github.com/clustermon/jobhistory-crawler/internal/parse"
	pubmem "github.com/clustermon/jobhistory-crawler/internal/publisher/memory"
)

const callbackSummary = `{
	"jobId": "job_1700000000000_0042",
	"user": "analytics",
	"state": "SUCCEEDED",
	"finishTime": 1700000100000
}`

func callbackArtifact() history.Artifact {
	return history.Artifact{
		JobID:   "job_1700000000000_0042",
		Path:    "/done/2023/11/14/job_1700000000000_0042.jhist",
		ModTime: 1700000100000,
	}
}

func TestCallbackPublishesParsedRecord(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	journal := journalmem.New()
	clock := fixedClock{now: testNow}
	cb := NewCallback(parse.NewJSONSummary(), pub, journal, clock, "jobs", "sandbox", 1, nil)

	err := cb.Process(context.Background(), callbackArtifact(), []byte(callbackSummary), nil)
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "jobs", msgs[0].Topic)

	record, ok := msgs[0].Payload.(history.JobRecord)
	require.True(t, ok)
	require.Equal(t, "job_1700000000000_0042", record.JobID)
	require.Equal(t, "application_1700000000000_0042", record.AppID)
	require.Equal(t, "sandbox", record.Site)
	require.Equal(t, history.JobStateSucceeded, record.State)

	entries := journal.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, history.JournalStatusProcessed, entries[0].Status)
	require.Equal(t, "20231114", entries[0].Bucket)
	require.Equal(t, 1, entries[0].PartitionID)
}

func TestCallbackBackfillsIdentifiers(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	cb := NewCallback(parse.NewJSONSummary(), pub, nil, fixedClock{now: testNow}, "jobs", "sandbox", 0, nil)

	err := cb.Process(context.Background(), callbackArtifact(), []byte(`{"state":"KILLED"}`), nil)
	require.NoError(t, err)

	record := pub.Messages()[0].Payload.(history.JobRecord)
	require.Equal(t, "job_1700000000000_0042", record.JobID)
	require.Equal(t, "application_1700000000000_0042", record.AppID)
}

func TestCallbackParseFailureJournalsAndFails(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	journal := journalmem.New()
	cb := NewCallback(parse.NewJSONSummary(), pub, journal, fixedClock{now: testNow}, "jobs", "sandbox", 2, nil)

	err := cb.Process(context.Background(), callbackArtifact(), []byte(`{broken`), nil)
	require.Error(t, err)
	require.Empty(t, pub.Messages())

	entries := journal.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, history.JournalStatusFailed, entries[0].Status)
	require.Equal(t, 2, entries[0].PartitionID)
}

func TestCallbackPublishFailureJournalsAndFails(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	boom := errors.New("broker unavailable")
	pub.FailWith(boom)
	journal := journalmem.New()
	cb := NewCallback(parse.NewJSONSummary(), pub, journal, fixedClock{now: testNow}, "jobs", "sandbox", 0, nil)

	err := cb.Process(context.Background(), callbackArtifact(), []byte(callbackSummary), nil)
	require.ErrorIs(t, err, boom)

	entries := journal.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, history.JournalStatusFailed, entries[0].Status)
}

func TestCallbackJournalFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	pub := pubmem.New()
	journal := journalmem.New()
	journal.FailWith(errors.New("database down"))
	cb := NewCallback(parse.NewJSONSummary(), pub, journal, fixedClock{now: testNow}, "jobs", "sandbox", 0, nil)

	err := cb.Process(context.Background(), callbackArtifact(), []byte(callbackSummary), nil)
	require.NoError(t, err)
	require.Len(t, pub.Messages(), 1)
}

func TestCallbackJournalDuration(t *testing.T) {
	t.Parallel()

	journal := journalmem.New()
	clock := &steppingClock{now: testNow, step: 250 * time.Millisecond}
	cb := NewCallback(parse.NewJSONSummary(), pubmem.New(), journal, clock, "jobs", "sandbox", 0, nil)

	require.NoError(t, cb.Process(context.Background(), callbackArtifact(), []byte(callbackSummary), nil))

	entries := journal.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, int64(250), entries[0].DurationMs)
}

// steppingClock advances by step on every call.
type steppingClock struct {
	now  time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}
