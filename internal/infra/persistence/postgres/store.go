// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics and writes touched batches as JSONB rows.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"vaxtrax/internal/infra/persistence/memory"
	"vaxtrax/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/vaxtrax?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN),
// ensures the batches table exists and hydrates the in-memory store from it.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		return nil, err
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies the provided function in memory, then upserts touched batches.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	var touched memory.Touched
	res, err := s.Store.RunInTransaction(ctx, touched.Wrap(fn))
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx, touched.IDs()); err != nil {
		return res, fmt.Errorf("%w: %w", domain.ErrSnapshotFailed, err)
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		position BIGINT NOT NULL,
		payload JSONB NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure batches table: %w", err)
	}
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, position, payload FROM batches ORDER BY position`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type positioned struct {
		pos   int64
		batch domain.Batch
	}
	var loaded []positioned
	for rows.Next() {
		var (
			id      string
			p       positioned
			payload []byte
		)
		if err := rows.Scan(&id, &p.pos, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan batch: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, &p.batch); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode %s: %w", id, err)
		}
		loaded = append(loaded, p)
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate batches: %w", err)
	}
	sort.SliceStable(loaded, func(i, j int) bool { return loaded[i].pos < loaded[j].pos })
	snapshot := memory.Snapshot{Batches: make([]domain.Batch, 0, len(loaded))}
	for _, p := range loaded {
		snapshot.Batches = append(snapshot.Batches, p.batch)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
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
			return fmt.Errorf("encode %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO batches(id,position,payload) VALUES($1,$2,$3) ON CONFLICT(id) DO UPDATE SET payload=EXCLUDED.payload`, id, int64(s.Position(id)), data); err != nil {
			return fmt.Errorf("upsert %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
