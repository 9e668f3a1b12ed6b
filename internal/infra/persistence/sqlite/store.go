// Package sqlite persists the in-memory batch registry to an embedded SQLite
// file, one JSON row per batch.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"vaxtrax/internal/infra/persistence/memory"
	"vaxtrax/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const defaultPath = "vaxtrax.db"

// Store reuses the in-memory store for transactions and writes every batch a
// committed transaction touched back to SQLite.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore opens (or creates) the SQLite file at path and hydrates the
// in-memory state from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// modernc sqlite serialises writers per file; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create batches table: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

type row struct {
	position int64
	batch    domain.Batch
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT id, position, payload FROM batches`)
	if err != nil {
		return fmt.Errorf("select batches: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var loaded []row
	for rows.Next() {
		var (
			id      string
			r       row
			payload []byte
		)
		if err := rows.Scan(&id, &r.position, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if err := json.Unmarshal(payload, &r.batch); err != nil {
			return fmt.Errorf("decode batch %s: %w", id, err)
		}
		loaded = append(loaded, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate batches: %w", err)
	}
	if len(loaded) == 0 {
		return nil
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].position < loaded[j].position })
	snapshot := memory.Snapshot{Batches: make([]domain.Batch, 0, len(loaded))}
	for _, r := range loaded {
		snapshot.Batches = append(snapshot.Batches, r.batch)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context, ids []string) (retErr error) {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, id := range ids {
		batch, ok := s.GetBatch(id)
		if !ok {
			continue
		}
		data, err := json.Marshal(batch)
		if err != nil {
			return fmt.Errorf("encode batch %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO batches(id,position,payload) VALUES(?,?,?) ON CONFLICT(id) DO UPDATE SET payload=excluded.payload`, id, s.Position(id), data); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunInTransaction applies fn in memory, then writes the touched batches to SQLite.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	var touched memory.Touched
	res, err := s.Store.RunInTransaction(ctx, touched.Wrap(fn))
	if err != nil {
		return res, err
	}
	if pErr := s.persist(ctx, touched.IDs()); pErr != nil {
		return res, fmt.Errorf("%w: %w", domain.ErrSnapshotFailed, pErr)
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
