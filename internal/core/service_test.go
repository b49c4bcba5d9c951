package core_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"molluscadb/internal/core"
	"molluscadb/pkg/domain"
)

func TestServiceCRUD(t *testing.T) {
	svc := core.NewInMemoryService(core.NewRulesEngine())
	ctx := context.Background()

	rec, res, err := svc.Create(ctx, domain.CollectionStorage, domain.Document{"box": "B1", "storageSite": "freezer 2"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Key == "" {
		t.Fatalf("expected generated key")
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", res.Violations)
	}

	updated, _, err := svc.Update(ctx, domain.CollectionStorage, rec.Key, domain.Document{"storageSite": "freezer 3"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Document.String("box") != "B1" || updated.Document.String("storageSite") != "freezer 3" {
		t.Fatalf("partial update lost fields: %+v", updated.Document)
	}

	replaced, _, err := svc.Replace(ctx, domain.CollectionStorage, rec.Key, domain.Document{"box": "B2"})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, ok := replaced.Document["storageSite"]; ok {
		t.Fatalf("replace kept old field: %+v", replaced.Document)
	}

	if got, ok := svc.Get(domain.CollectionStorage, rec.Key); !ok || got.Document.String("box") != "B2" {
		t.Fatalf("unexpected get result %+v ok=%v", got, ok)
	}

	if _, err := svc.Delete(ctx, domain.CollectionStorage, rec.Key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(svc.List(domain.CollectionStorage)) != 0 {
		t.Fatalf("expected empty collection")
	}

	_, err = svc.Delete(ctx, domain.CollectionStorage, rec.Key)
	var notFound core.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestServiceRejectsUnknownCollection(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	if _, _, err := svc.Create(context.Background(), domain.Collection("animals"), domain.Document{}); err == nil {
		t.Fatalf("expected unknown collection error")
	}
	if _, err := svc.Subscribe(context.Background(), domain.Collection("animals"), func(domain.Snapshot) {}); err == nil {
		t.Fatalf("expected subscribe error")
	}
}

func TestDefaultRulesAreAdvisory(t *testing.T) {
	svc := core.NewInMemoryService(core.NewRulesEngine(), core.WithDefaultRules())
	ctx := context.Background()

	if _, _, err := svc.Create(ctx, domain.CollectionExtractions, domain.Document{"isolateCode": "MOL-1"}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	rec, res, err := svc.Create(ctx, domain.CollectionExtractions, domain.Document{"isolateCode": "MOL-1"})
	if err != nil {
		t.Fatalf("duplicate isolate code must not block: %v", err)
	}
	if rec.Key == "" {
		t.Fatalf("expected duplicate to be stored")
	}
	if len(res.Violations) != 1 || res.Violations[0].Rule != "unique_isolate_code" || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected one unique_isolate_code warning, got %+v", res.Violations)
	}
}

func TestUniqueFieldRules(t *testing.T) {
	cases := []struct {
		collection domain.Collection
		field      string
		rule       string
	}{
		{domain.CollectionPrimers, "name", "unique_primer_name"},
		{domain.CollectionPcrPrograms, "name", "unique_pcr_program_name"},
		{domain.CollectionStorage, "box", "unique_storage_box"},
		{domain.CollectionLocations, "localityCode", "unique_locality_code"},
	}
	for _, tc := range cases {
		t.Run(tc.rule, func(t *testing.T) {
			svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
			ctx := context.Background()
			if _, res, err := svc.Create(ctx, tc.collection, domain.Document{tc.field: "X"}); err != nil || len(res.Violations) != 0 {
				t.Fatalf("first create: res=%+v err=%v", res, err)
			}
			if _, res, err := svc.Create(ctx, tc.collection, domain.Document{tc.field: "Y"}); err != nil || len(res.Violations) != 0 {
				t.Fatalf("distinct create: res=%+v err=%v", res, err)
			}
			_, res, err := svc.Create(ctx, tc.collection, domain.Document{tc.field: "X"})
			if err != nil {
				t.Fatalf("duplicate create: %v", err)
			}
			if len(res.Violations) != 1 || res.Violations[0].Rule != tc.rule {
				t.Fatalf("expected %s violation, got %+v", tc.rule, res.Violations)
			}
		})
	}
}

func TestGroupSymmetryRuleLogsOneSidedGroups(t *testing.T) {
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine())
	ctx := context.Background()
	if _, _, err := svc.Create(ctx, domain.CollectionExtractions, domain.Document{"isolateCode": "X2"}); err != nil {
		t.Fatalf("create X2: %v", err)
	}
	_, res, err := svc.Create(ctx, domain.CollectionExtractions, domain.Document{
		"isolateCode":      "X1",
		"isolateCodeGroup": []string{"X1", "X2"},
	})
	if err != nil {
		t.Fatalf("create X1: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityLog {
		t.Fatalf("expected one log-level symmetry violation, got %+v", res.Violations)
	}

	res, err = svc.RunInTransaction(ctx, "group_link", domain.CollectionExtractions, func(tx domain.Transaction) error {
		for _, rec := range tx.List(domain.CollectionExtractions) {
			if _, err := tx.Update(domain.CollectionExtractions, rec.Key, domain.Document{"isolateCodeGroup": []string{"X1", "X2"}}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("fan-out: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("symmetric groups must not be reported, got %+v", res.Violations)
	}
}

func TestServiceSubscribeDeliversSnapshots(t *testing.T) {
	svc := core.NewInMemoryService(nil)
	ctx := context.Background()
	ch := make(chan domain.Snapshot, 8)
	sub, err := svc.Subscribe(ctx, domain.CollectionPrimers, func(s domain.Snapshot) { ch <- s })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer func() { _ = sub.Close() }()
	if _, _, err := svc.Create(ctx, domain.CollectionPrimers, domain.Document{"name": "HCO2198"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-ch:
			if len(s.Entries) == 1 {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func TestOpenPersistentStoreDrivers(t *testing.T) {
	store, err := core.OpenPersistentStore(core.StorageConfig{Driver: core.StorageMemory}, nil)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	_ = store.Close()

	if _, err := core.OpenPersistentStore(core.StorageConfig{Driver: "bogus"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	path := t.TempDir() + "/state.db"
	sqliteStore, err := core.OpenPersistentStore(core.StorageConfig{Driver: core.StorageSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	_ = sqliteStore.Close()
}

func TestServiceVersionFollowsCommits(t *testing.T) {
	svc := core.NewInMemoryService(core.NewRulesEngine())
	if v := svc.Version(domain.CollectionPrimers); v != 0 {
		t.Fatalf("expected fresh collection at version 0, got %d", v)
	}
	if _, _, err := svc.Create(context.Background(), domain.CollectionPrimers, domain.Document{"name": "ITS1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if v := svc.Version(domain.CollectionPrimers); v != 1 {
		t.Fatalf("expected version 1 after one commit, got %d", v)
	}
	if v := svc.Version(domain.CollectionStorage); v != 0 {
		t.Fatalf("untouched collection moved to %d", v)
	}
}
