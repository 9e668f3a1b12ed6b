package memory

import "vaxtrax/pkg/domain"

// Touched records which batches a transaction created or updated so that
// snapshotting backends only rewrite dirty rows.
type Touched struct {
	ids  []string
	seen map[string]struct{}
}

// Wrap returns fn operating on a transaction that reports successful writes to t.
func (t *Touched) Wrap(fn func(Transaction) error) func(Transaction) error {
	return func(tx Transaction) error {
		return fn(touchingTx{Transaction: tx, touched: t})
	}
}

// IDs returns touched batch IDs in first-write order.
func (t *Touched) IDs() []string {
	return append([]string(nil), t.ids...)
}

func (t *Touched) add(id string) {
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	if _, ok := t.seen[id]; ok {
		return
	}
	t.seen[id] = struct{}{}
	t.ids = append(t.ids, id)
}

type touchingTx struct {
	Transaction
	touched *Touched
}

func (tx touchingTx) CreateBatch(b Batch, action domain.Action) (Batch, error) {
	created, err := tx.Transaction.CreateBatch(b, action)
	if err == nil {
		tx.touched.add(created.ID)
	}
	return created, err
}

func (tx touchingTx) UpdateBatch(id string, action domain.Action, mutator func(*Batch) (domain.HistoryEntry, error)) (Batch, error) {
	updated, err := tx.Transaction.UpdateBatch(id, action, mutator)
	if err == nil {
		tx.touched.add(id)
	}
	return updated, err
}

// Position returns the insertion index of id, or -1.
func (s *Store) Position(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, candidate := range s.state.order {
		if candidate == id {
			return i
		}
	}
	return -1
}
