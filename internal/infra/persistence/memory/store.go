// Package memory provides the in-memory transactional batch store used
// directly in ephemeral deployments and embedded by the snapshotting SQL
// backends.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vaxtrax/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Batch aliases domain.Batch for in-memory persistence operations.
	Batch = domain.Batch
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	batches map[string]Batch
	order   []string
}

// Snapshot captures a point-in-time clone of the store state. Batches are
// kept in insertion order.
type Snapshot struct {
	Batches []Batch `json:"batches"`
}

func newMemoryState() memoryState {
	return memoryState{batches: make(map[string]Batch)}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		batches: make(map[string]Batch, len(s.batches)),
		order:   append([]string(nil), s.order...),
	}
	for k, v := range s.batches {
		cloned.batches[k] = domain.CloneBatch(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	out := Snapshot{Batches: make([]Batch, 0, len(state.order))}
	for _, id := range state.order {
		out.Batches = append(out.Batches, domain.CloneBatch(state.batches[id]))
	}
	return out
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for _, b := range s.Batches {
		if b.ID == "" {
			continue
		}
		if _, dup := state.batches[b.ID]; !dup {
			state.order = append(state.order, b.ID)
		}
		if b.History == nil {
			b.History = []domain.HistoryEntry{}
		}
		state.batches[b.ID] = domain.CloneBatch(b)
	}
	return state
}

// Store provides an in-memory transactional store for batches. A single
// lock serialises every read-modify-append transaction.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction clock.
func (s *Store) SetNowFunc(fn func() time.Time) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.nowFn = fn
	s.mu.Unlock()
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) transactionView {
	return transactionView{state: state}
}

// ListBatches returns all batches within the snapshot in insertion order.
func (v transactionView) ListBatches() []Batch {
	out := make([]Batch, 0, len(v.state.order))
	for _, id := range v.state.order {
		out = append(out, domain.CloneBatch(v.state.batches[id]))
	}
	return out
}

// FindBatch retrieves a batch by ID from the snapshot.
func (v transactionView) FindBatch(id string) (Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return domain.CloneBatch(b), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Changes are committed only when fn succeeds and no blocking rule fires.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every mutation in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// FindBatch exposes batch lookup within the transaction scope.
func (tx *transaction) FindBatch(id string) (Batch, bool) {
	return newTransactionView(&tx.state).FindBatch(id)
}

// CreateBatch stores a new batch. Any history carried by b is kept and the
// batch's LastUpdated defaults to the transaction time.
func (tx *transaction) CreateBatch(b Batch, action domain.Action) (Batch, error) {
	if b.ID == "" {
		return Batch{}, domain.InvalidArgumentf("batch id is required")
	}
	if _, exists := tx.state.batches[b.ID]; exists {
		return Batch{}, domain.InvalidArgumentf("batch %q already exists", b.ID)
	}
	if b.LastUpdated.IsZero() {
		b.LastUpdated = tx.now
	}
	if b.History == nil {
		b.History = []domain.HistoryEntry{}
	}
	stored := domain.CloneBatch(b)
	tx.state.batches[b.ID] = stored
	tx.state.order = append(tx.state.order, b.ID)

	change := Change{Action: action, After: domain.CloneBatch(stored)}
	if entry, ok := stored.LatestEntry(); ok {
		change.Entry = entry
	}
	tx.changes = append(tx.changes, change)
	return domain.CloneBatch(stored), nil
}

// UpdateBatch applies mutator to the batch and appends the history entry it
// returns. BatchNo and Timestamp are filled from the batch and transaction
// when left empty.
func (tx *transaction) UpdateBatch(id string, action domain.Action, mutator func(*Batch) (domain.HistoryEntry, error)) (Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return Batch{}, domain.NotFound(id)
	}
	before := domain.CloneBatch(current)
	working := domain.CloneBatch(current)
	entry, err := mutator(&working)
	if err != nil {
		return Batch{}, err
	}
	if entry.Action == "" {
		return Batch{}, fmt.Errorf("batch %q: history entry for %s has no action label", id, action)
	}
	working.ID = id
	working.LastUpdated = tx.now
	if entry.BatchNo == "" {
		entry.BatchNo = id
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = tx.now
	}
	working.History = append(working.History, entry)
	tx.state.batches[id] = working

	tx.changes = append(tx.changes, Change{
		Action: action,
		Before: &before,
		After:  domain.CloneBatch(working),
		Entry:  entry,
	})
	return domain.CloneBatch(working), nil
}

// GetBatch retrieves a batch by ID from committed state.
func (s *Store) GetBatch(id string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return Batch{}, false
	}
	return domain.CloneBatch(b), true
}

// ListBatches returns all batches from committed state in insertion order.
func (s *Store) ListBatches() []Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Batch, 0, len(s.state.order))
	for _, id := range s.state.order {
		out = append(out, domain.CloneBatch(s.state.batches[id]))
	}
	return out
}

// Len returns the number of stored batches.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.order)
}
