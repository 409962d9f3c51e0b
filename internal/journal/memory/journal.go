// Package memory contains an in-memory journal used by tests and by
// deployments that run without a database.
package memory

import (
	"context"
	"sync"

	"github.com/clustermon/jobhistory-crawler/internal/history"
)

// Journal stores journal entries for inspection.
type Journal struct {
	mu      sync.RWMutex
	entries []history.JournalEntry
	err     error
}

// New returns a memory Journal.
func New() *Journal {
	return &Journal{}
}

// FailWith makes every subsequent Record return err. Passing nil
// restores normal operation.
func (j *Journal) FailWith(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
}

// Record appends the entry.
func (j *Journal) Record(_ context.Context, entry history.JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return j.err
	}
	j.entries = append(j.entries, entry)
	return nil
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []history.JournalEntry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]history.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}
