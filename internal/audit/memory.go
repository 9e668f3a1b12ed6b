package audit

import (
	"context"
	"sync"

	"vaxtrax/pkg/domain"
)

// MemorySink keeps entries in process.
type MemorySink struct {
	mu      sync.RWMutex
	entries []domain.HistoryEntry
}

// NewMemorySink returns an empty sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Append implements Sink.
func (m *MemorySink) Append(_ context.Context, entry domain.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

// Scans implements Reader.
func (m *MemorySink) Scans(_ context.Context, batchNo string) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.HistoryEntry{}
	for _, e := range m.entries {
		if e.BatchNo == batchNo {
			out = append(out, e)
		}
	}
	return out, nil
}

// Entries returns a copy of everything appended.
func (m *MemorySink) Entries() []domain.HistoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.HistoryEntry(nil), m.entries...)
}
