package grouplink_test

import (
	"context"
	"errors"
	"slices"
	"sort"
	"testing"

	"molluscadb/internal/core"
	"molluscadb/internal/grouplink"
	"molluscadb/pkg/domain"
)

func site(code string, extra ...string) domain.Document {
	doc := domain.Document{
		"isolateCode":    code,
		"country":        "CZ",
		"latitude":       "49.19",
		"longitude":      "16.60",
		"state":          "Moravia",
		"localityName":   "Brno",
		"dateCollection": "2021-05-01",
		"collector":      "J. Novak",
		"habitat":        "spring",
		"speciesOrig":    "Bythinella austriaca",
		"altitude":       "210",
	}
	for i := 0; i+1 < len(extra); i += 2 {
		doc[extra[i]] = extra[i+1]
	}
	return doc
}

func seed(t *testing.T, svc *core.Service, docs ...domain.Document) []domain.Record {
	t.Helper()
	out := make([]domain.Record, 0, len(docs))
	for _, doc := range docs {
		rec, _, err := svc.Create(context.Background(), domain.CollectionExtractions, doc)
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func group(t *testing.T, svc *core.Service, key string) []string {
	t.Helper()
	rec, ok := svc.Get(domain.CollectionExtractions, key)
	if !ok {
		t.Fatalf("missing %s", key)
	}
	g := rec.Document.Strings("isolateCodeGroup")
	sort.Strings(g)
	return g
}

func TestLinkFansOutUnionToBothRecords(t *testing.T) {
	svc := core.NewInMemoryService(domain.NewRulesEngine())
	recs := seed(t, svc, site("X1"), site("X2"), site("X3"))
	a, b, c := recs[0], recs[1], recs[2]

	out, err := grouplink.New(svc).Link(context.Background(), a.Key, b.Key)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	want := []string{"X1", "X2"}
	for _, key := range []string{a.Key, b.Key} {
		if got := group(t, svc, key); !slices.Equal(got, want) {
			t.Fatalf("expected %v on %s, got %v", want, key, got)
		}
	}
	if len(out.Touched) != 2 || slices.Contains(out.Touched, c.Key) {
		t.Fatalf("expected writes to exactly X1 and X2, got %v", out.Touched)
	}
	if _, present := mustGet(t, svc, c.Key).Document["isolateCodeGroup"]; present {
		t.Fatalf("record outside the union must not be written")
	}
}

func mustGet(t *testing.T, svc *core.Service, key string) domain.Record {
	t.Helper()
	rec, ok := svc.Get(domain.CollectionExtractions, key)
	if !ok {
		t.Fatalf("missing %s", key)
	}
	return rec
}

func TestLinkMergesExistingGroups(t *testing.T) {
	svc := core.NewInMemoryService(domain.NewRulesEngine())
	recs := seed(t, svc, site("X1"), site("X2"), site("X3"), site("X4"))
	linker := grouplink.New(svc)
	ctx := context.Background()
	if _, err := linker.Link(ctx, recs[0].Key, recs[1].Key); err != nil {
		t.Fatalf("link 1-2: %v", err)
	}
	if _, err := linker.Link(ctx, recs[2].Key, recs[3].Key); err != nil {
		t.Fatalf("link 3-4: %v", err)
	}
	out, err := linker.Link(ctx, recs[1].Key, recs[3].Key)
	if err != nil {
		t.Fatalf("link groups: %v", err)
	}
	if len(out.Group) != 4 || len(out.Touched) != 4 {
		t.Fatalf("expected four-member union written to four records, got %+v", out)
	}
	for _, r := range recs {
		if got := group(t, svc, r.Key); len(got) != 4 {
			t.Fatalf("expected full group on %s, got %v", r.Key, got)
		}
	}
	members := grouplink.Members(mustGet(t, svc, recs[0].Key), svc.List(domain.CollectionExtractions))
	if len(members) != 3 {
		t.Fatalf("members must exclude the record itself, got %d", len(members))
	}
}

func TestLinkRefusals(t *testing.T) {
	svc := core.NewInMemoryService(domain.NewRulesEngine())
	recs := seed(t, svc, site("X1"), site("X2", "habitat", "cave"), site(""))
	linker := grouplink.New(svc)
	ctx := context.Background()
	if _, err := linker.Link(ctx, recs[0].Key, recs[0].Key); !errors.Is(err, grouplink.ErrSelfLink) {
		t.Fatalf("expected ErrSelfLink, got %v", err)
	}
	if _, err := linker.Link(ctx, recs[0].Key, recs[1].Key); !errors.Is(err, grouplink.ErrNotCandidate) {
		t.Fatalf("expected ErrNotCandidate, got %v", err)
	}
	if _, err := linker.Link(ctx, recs[0].Key, recs[2].Key); !errors.Is(err, grouplink.ErrNoIsolateCode) {
		t.Fatalf("expected ErrNoIsolateCode, got %v", err)
	}
	var notFound domain.ErrNotFound
	if _, err := linker.Link(ctx, recs[0].Key, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, r := range recs {
		if _, present := mustGet(t, svc, r.Key).Document["isolateCodeGroup"]; present {
			t.Fatalf("refused link must not write")
		}
	}
}

func TestCandidatesExcludeSelfMembersAndMismatches(t *testing.T) {
	a := domain.Record{Key: "a", Document: site("X1")}
	a.Document["isolateCodeGroup"] = []string{"X1", "X2"}
	all := []domain.Record{
		a,
		{Key: "b", Document: site("X2")},
		{Key: "c", Document: site("X3")},
		{Key: "d", Document: site("X4", "altitude", "211")},
		{Key: "e", Document: site("X5", "speciesOrig", "Bythinella sp.")},
	}
	got := grouplink.Candidates(a, all)
	if len(got) != 1 || got[0].Key != "c" {
		t.Fatalf("expected only c, got %+v", got)
	}
}

func TestUnlinkRemovesMemberEverywhere(t *testing.T) {
	svc := core.NewInMemoryService(domain.NewRulesEngine())
	recs := seed(t, svc, site("X1"), site("X2"), site("X3"), site("X4"))
	linker := grouplink.New(svc)
	ctx := context.Background()
	for _, r := range recs[1:3] {
		if _, err := linker.Link(ctx, recs[0].Key, r.Key); err != nil {
			t.Fatalf("link: %v", err)
		}
	}
	out, err := linker.Unlink(ctx, recs[0].Key, recs[2].Key)
	if err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if slices.Contains(out.Touched, recs[3].Key) {
		t.Fatalf("non-member must not be touched")
	}
	for _, r := range recs[:2] {
		if got := group(t, svc, r.Key); !slices.Equal(got, []string{"X1", "X2"}) {
			t.Fatalf("expected X3 removed on %s, got %v", r.Key, got)
		}
	}
	if got := group(t, svc, recs[2].Key); len(got) != 0 {
		t.Fatalf("expected removed record's group cleared, got %v", got)
	}
	if _, err := linker.Unlink(ctx, recs[0].Key, recs[3].Key); !errors.Is(err, grouplink.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestDeleteExtractionCleansSiblings(t *testing.T) {
	svc := core.NewInMemoryService(domain.NewRulesEngine())
	recs := seed(t, svc, site("X1"), site("X2"), site("X3"))
	linker := grouplink.New(svc)
	ctx := context.Background()
	if _, err := linker.Link(ctx, recs[0].Key, recs[1].Key); err != nil {
		t.Fatalf("link: %v", err)
	}
	out, err := linker.DeleteExtraction(ctx, recs[0].Key)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if out.Deleted != recs[0].Key {
		t.Fatalf("expected deleted key, got %+v", out)
	}
	if _, ok := svc.Get(domain.CollectionExtractions, recs[0].Key); ok {
		t.Fatalf("expected record deleted")
	}
	if got := group(t, svc, recs[1].Key); !slices.Equal(got, []string{"X2"}) {
		t.Fatalf("expected X1 removed from sibling, got %v", got)
	}
	if len(out.Touched) != 1 || out.Touched[0] != recs[1].Key {
		t.Fatalf("only siblings listing the code may be touched, got %v", out.Touched)
	}
	if _, present := mustGet(t, svc, recs[2].Key).Document["isolateCodeGroup"]; present {
		t.Fatalf("unrelated record must not be written")
	}
}
