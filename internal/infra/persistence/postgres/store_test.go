package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"molluscadb/internal/infra/persistence/memory"
	"molluscadb/internal/infra/persistence/postgres/testutil"
	"molluscadb/pkg/domain"
)

func openStub(t *testing.T) (*testutil.StubConn, func()) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	return conn, restore
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer func() { _ = store.Close() }()
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state DDL, got execs: %v", conn.Execs)
	}
}

func TestRunInTransactionPersistsAndReloads(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	store, err := NewStore("postgres://stub", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	var key string
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		rec, e := tx.Create(domain.CollectionPrimers, domain.Document{"name": "LCO1490", "marker": "COI"})
		key = rec.Key
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	rows := conn.Tables["state"]
	if len(rows) != len(domain.Collections()) {
		t.Fatalf("expected one row per collection, got %d", len(rows))
	}

	reloaded, err := NewStore("postgres://stub", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.Get(domain.CollectionPrimers, key)
	if !ok || got.Document.String("marker") != "COI" {
		t.Fatalf("expected primer after reload, got %+v ok=%v", got, ok)
	}
	if reloaded.DB() == nil {
		t.Fatalf("expected db handle")
	}
}

func TestRunInTransactionSurfacesPersistError(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	conn.FailCommit = true
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.Create(domain.CollectionStorage, domain.Document{"box": "B1"})
		return e
	})
	if err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
}

func TestLoadSnapshotDecodeError(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()
	conn.Tables["state"] = []map[string]any{{"bucket": "extractions", "payload": []byte("{not json")}}
	if _, err := NewStore("", domain.NewRulesEngine()); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestLoadSnapshotRowsError(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()
	conn.RowsErr = errors.New("rows boom")
	if _, err := NewStore("", domain.NewRulesEngine()); err == nil {
		t.Fatalf("expected rows error")
	}
}

func TestNewStoreOpenError(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") })
	defer restore()
	if _, err := NewStore("", nil); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestConcurrentCommitsPersistNewestState(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	var key string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rec, e := tx.Create(domain.CollectionPrimers, domain.Document{"name": "LCO1490"})
		key = rec.Key
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	const writers, rounds = 4, 10
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				field := fmt.Sprintf("note%d_%d", w, r)
				if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
					_, e := tx.Update(domain.CollectionPrimers, key, domain.Document{field: "x"})
					return e
				}); err != nil {
					t.Errorf("update %s: %v", field, err)
				}
			}
		}(w)
	}
	wg.Wait()

	var snapshot memory.Snapshot
	for _, row := range conn.Tables["state"] {
		if err := memory.DecodeBucket(&snapshot, row["bucket"].(string), row["payload"].([]byte)); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	stored := snapshot.Collections[domain.CollectionPrimers][key]
	if len(stored) != 1+writers*rounds {
		t.Fatalf("expected %d persisted fields, got %d", 1+writers*rounds, len(stored))
	}
}

func TestStaleSnapshotIsNotWritten(t *testing.T) {
	conn, restore := openStub(t)
	defer restore()

	store, err := NewStore("", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	ctx := context.Background()
	newer := memory.Snapshot{Seq: 5}
	if err := store.writeThrough(ctx, newer); err != nil {
		t.Fatalf("write newer: %v", err)
	}
	before := len(conn.Execs)
	if err := store.writeThrough(ctx, memory.Snapshot{Seq: 3}); err != nil {
		t.Fatalf("write stale: %v", err)
	}
	if len(conn.Execs) != before {
		t.Fatalf("stale snapshot must not reach the database, saw %v", conn.Execs[before:])
	}
}
