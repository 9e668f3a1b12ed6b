package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"vaxtrax/internal/infra/persistence/postgres/testutil"
	"vaxtrax/pkg/domain"
)

func stubStore(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	s, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s, conn
}

func createBatch(ctx context.Context, s *Store, id string) error {
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		b := domain.Batch{ID: id, Temperature: -16, Stage: domain.StageFactory, Status: domain.StatusSafe, TempLimits: domain.DefaultTempLimits}
		_, err := tx.CreateBatch(b, domain.ActionImport)
		return err
	})
	return err
}

func TestNewStoreAppliesSchema(t *testing.T) {
	_, conn := stubStore(t)
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(stmt, "CREATE TABLE IF NOT EXISTS batches") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected batches DDL, got %v", conn.Execs)
	}
}

func TestRunInTransactionUpsertsTouchedRows(t *testing.T) {
	ctx := context.Background()
	s, conn := stubStore(t)
	if err := createBatch(ctx, s, "VAX-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := createBatch(ctx, s, "VAX-2"); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.UpdateBatch("VAX-1", domain.ActionHalt, func(b *domain.Batch) (domain.HistoryEntry, error) {
			return b.Entry(domain.ActionLabelHalt, time.Time{}), nil
		})
		return err
	})
	if err != nil {
		t.Fatalf("halt: %v", err)
	}
	rows := conn.Tables["batches"]
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows after upsert, got %d", len(rows))
	}
	var halted domain.Batch
	for _, row := range rows {
		if row["id"] == "VAX-1" {
			if err := json.Unmarshal(row["payload"].([]byte), &halted); err != nil {
				t.Fatalf("decode payload: %v", err)
			}
		}
	}
	if len(halted.History) != 1 || halted.History[0].Action != domain.ActionLabelHalt {
		t.Fatalf("expected halted payload, got %+v", halted)
	}
}

func TestNewStoreLoadsSnapshotInPositionOrder(t *testing.T) {
	db, conn := testutil.NewStubDB()
	for i, id := range []string{"second", "first"} {
		payload, _ := json.Marshal(domain.Batch{ID: id, Stage: domain.StageHub, Status: domain.StatusSafe})
		conn.Tables["batches"] = append(conn.Tables["batches"], map[string]any{
			"id": id, "position": int64(1 - i), "payload": payload,
		})
	}
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	s, err := NewStore("postgres://example", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	list := s.ListBatches()
	if len(list) != 2 || list[0].ID != "first" || list[1].ID != "second" {
		t.Fatalf("expected position order, got %+v", list)
	}
	if s.DB() != db {
		t.Fatalf("expected stub db")
	}
}

func TestNewStoreErrors(t *testing.T) {
	openErr := errors.New("dial")
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, openErr })
	if _, err := NewStore("", nil); !errors.Is(err, openErr) {
		t.Fatalf("expected open error, got %v", err)
	}
	restore()

	db, conn := testutil.NewStubDB()
	conn.FailExec = true
	restore = OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore("", nil); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestPersistFailuresSurface(t *testing.T) {
	ctx := context.Background()
	s, conn := stubStore(t)
	cases := []struct {
		id   string
		fail func(bool)
		want string
	}{
		{"VAX-1", func(on bool) { conn.FailCommit = on }, "commit"},
		{"VAX-2", func(on bool) { conn.FailBegin = on }, "begin"},
		{"VAX-3", func(on bool) { conn.FailExec = on }, "upsert"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			tc.fail(true)
			defer tc.fail(false)
			err := createBatch(ctx, s, tc.id)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %s failure, got %v", tc.want, err)
			}
			if !errors.Is(err, domain.ErrSnapshotFailed) {
				t.Fatalf("expected ErrSnapshotFailed, got %v", err)
			}
			if _, ok := s.GetBatch(tc.id); !ok {
				t.Fatalf("expected %s committed in memory", tc.id)
			}
		})
	}
}
