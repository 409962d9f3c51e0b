package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

func TestRecordInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal, err := NewWithPool(mock, "job_journal")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	entry := history.JournalEntry{
		JobID:       "job_1700000000000_0042",
		Site:        "sandbox",
		PartitionID: 2,
		Bucket:      "20231114",
		ModTime:     1700000000000,
		ProcessedAt: now,
		DurationMs:  150,
		Status:      history.JournalStatusProcessed,
	}

	mock.ExpectExec("INSERT INTO job_journal").
		WithArgs(
			entry.JobID,
			entry.Site,
			entry.PartitionID,
			entry.Bucket,
			entry.ModTime,
			entry.ProcessedAt,
			entry.DurationMs,
			entry.Status,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, journal.Record(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRequiresJobID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal, err := NewWithPool(mock, "")
	require.NoError(t, err)

	err = journal.Record(context.Background(), history.JournalEntry{Site: "sandbox"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordWrapsExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	journal, err := NewWithPool(mock, "job_journal")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO job_journal").
		WithArgs(
			"job_1700000000000_0042",
			"sandbox",
			0,
			"",
			int64(0),
			time.Time{},
			int64(0),
			"",
		).
		WillReturnError(boom)

	err = journal.Record(context.Background(), history.JournalEntry{JobID: "job_1700000000000_0042", Site: "sandbox"})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "journal; drop table jobs")
	require.Error(t, err)

	_, err = NewWithPool(nil, "job_journal")
	require.Error(t, err)
}
