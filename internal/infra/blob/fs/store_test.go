package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"molluscadb/internal/blob/core"
)

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	obj, err := s.Put(ctx, "exports/all/a.csv", strings.NewReader("h\nv\n"), core.PutOptions{ContentType: "text/csv", Metadata: map[string]string{"view": "all"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if obj.Size != 4 || len(obj.Checksum) != 64 {
		t.Fatalf("unexpected object %+v", obj)
	}
	if _, err := s.Put(ctx, "exports/all/a.csv", strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	got, rc, err := s.Get(ctx, "exports/all/a.csv")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "h\nv\n" || got.ContentType != "text/csv" || got.Metadata["view"] != "all" {
		t.Fatalf("unexpected %q %+v", body, got)
	}

	_, _ = s.Put(ctx, "exports/primers/b.csv", strings.NewReader("b"), core.PutOptions{})
	list, err := s.List(ctx, "exports/all/")
	if err != nil || len(list) != 1 || list[0].Key != "exports/all/a.csv" {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 blobs, got %d", len(all))
	}

	if ok, err := s.Delete(ctx, "exports/all/a.csv"); !ok || err != nil {
		t.Fatalf("delete: %v %v", ok, err)
	}
	if _, _, err := s.Get(ctx, "exports/all/a.csv"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreRejectsUnsafeKeys(t *testing.T) {
	s, _ := New(t.TempDir())
	for _, key := range []string{"", "/abs", "../up", "a/../../b", "x.meta"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("expected key %q to be rejected", key)
		}
	}
}
