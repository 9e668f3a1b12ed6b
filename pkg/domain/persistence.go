package domain

import (
	"context"
	"errors"
	"time"
)

// ErrSnapshotFailed is wrapped by snapshotting stores when a transaction
// committed in memory but writing the touched rows to the backing database
// failed. The committed state stays visible; callers must treat the mutation
// as applied.
var ErrSnapshotFailed = errors.New("snapshot write failed after commit")

// Transaction exposes the batch operations a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	CreateBatch(Batch, Action) (Batch, error)
	UpdateBatch(id string, action Action, mutator func(*Batch) (HistoryEntry, error)) (Batch, error)
	FindBatch(id string) (Batch, bool)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBatch(id string) (Batch, bool)
	ListBatches() []Batch
}

// AuditSink receives a copy of every committed history entry.
type AuditSink interface {
	Append(ctx context.Context, entry HistoryEntry) error
}
