package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"molluscadb/pkg/domain"
)

func TestSQLiteStorePersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	var key string
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		rec, e := tx.Create(domain.CollectionExtractions, domain.Document{
			"isolateCode":      "MOL-1",
			"isolateCodeGroup": []string{"k1", "k2"},
		})
		key = rec.Key
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok := reloaded.Get(domain.CollectionExtractions, key)
	if !ok {
		t.Fatalf("expected record %s after reload", key)
	}
	if got.Document.String("isolateCode") != "MOL-1" {
		t.Fatalf("unexpected document %+v", got.Document)
	}
	if group := got.Document.Strings("isolateCodeGroup"); len(group) != 2 || group[1] != "k2" {
		t.Fatalf("expected list to survive reload, got %#v", got.Document["isolateCodeGroup"])
	}
	if _, isSlice := got.Document["isolateCodeGroup"].([]string); !isSlice {
		t.Fatalf("expected normalized []string, got %T", got.Document["isolateCodeGroup"])
	}
}

func TestSQLiteStoreWritesOneRowPerCollection(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.Create(domain.CollectionStorage, domain.Document{"box": "B1"})
		return e
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != len(domain.Collections()) {
		t.Fatalf("expected %d bucket rows, got %d", len(domain.Collections()), count)
	}
	if store.Path() == "" {
		t.Fatalf("expected path")
	}
}

func TestSQLiteStoreKeepsNewestStateUnderConcurrentCommits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	var key string
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		rec, e := tx.Create(domain.CollectionExtractions, domain.Document{"isolateCode": "MOL-1"})
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
					_, e := tx.Update(domain.CollectionExtractions, key, domain.Document{field: "x"})
					return e
				}); err != nil {
					t.Errorf("update %s: %v", field, err)
				}
			}
		}(w)
	}
	wg.Wait()
	want, _ := store.Get(domain.CollectionExtractions, key)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok := reloaded.Get(domain.CollectionExtractions, key)
	if !ok {
		t.Fatalf("record %s lost on reload", key)
	}
	if len(got.Document) != len(want.Document) || len(want.Document) != 1+writers*rounds {
		t.Fatalf("expected %d fields after reload, memory had %d, disk had %d", 1+writers*rounds, len(want.Document), len(got.Document))
	}
}
