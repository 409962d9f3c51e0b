package history

import (
	"context"
	"time"
)

// Source lists and fetches job history artifacts from the cluster
// filesystem. List returns artifacts modified at or after since (epoch
// milliseconds). Refresh re-establishes the underlying handle after a
// transport failure.
type Source interface {
	List(ctx context.Context, since int64) ([]Artifact, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
	Refresh(ctx context.Context) error
	Close() error
}

// Callback consumes one fetched artifact. A returned error marks the
// artifact failed for this round; it stays unmarked and is revisited.
type Callback interface {
	Process(ctx context.Context, artifact Artifact, content []byte, conf []byte) error
}

// Parser turns raw history and configuration payloads into a JobRecord.
type Parser interface {
	Parse(artifact Artifact, content []byte, conf []byte) (JobRecord, error)
}

// Publisher pushes parsed records to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Journal persists per-artifact audit entries.
type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall-clock Clock used outside tests.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }
