package lookup

import (
	"testing"

	"molluscadb/pkg/domain"
)

func fixtures() (ext, storage, places []domain.Record) {
	storage = []domain.Record{
		{Key: "s1", Document: domain.Document{"box": "Box A", "storageSite": "Freezer 1"}},
	}
	places = []domain.Record{
		{Key: "l1", Document: domain.Document{"localityCode": "LC1", "country": "Czechia", "collector": "Novak"}},
		{Key: "l2", Document: domain.Document{"localityCode": "LC1", "country": "Slovakia"}},
	}
	ext = []domain.Record{
		{Key: "e1", Document: domain.Document{"isolateCode": "X1", "box": "s1", "localityCode": "l1", "country": "copied"}},
		{Key: "e2", Document: domain.Document{"isolateCode": "X2", "box": "missing"}},
		{Key: "e3", Document: nil},
	}
	return ext, storage, places
}

func TestJoinResolvesBoxes(t *testing.T) {
	ext, storage, places := fixtures()
	rows := Join(ext, storage, places, Options{})
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Document.String("boxName") != "Box A" || rows[0].Document.String("storageSite") != "Freezer 1" {
		t.Fatalf("box not resolved: %+v", rows[0].Document)
	}
	if rows[1].Document.String("boxName") != "" || rows[1].Document.String("storageSite") != "" {
		t.Fatalf("unresolved box must be blank: %+v", rows[1].Document)
	}
	if rows[0].Document.String("country") != "copied" {
		t.Fatalf("copied locality values must survive without normalization")
	}
	if rows[2].Key != "e3" {
		t.Fatalf("expected nil document row to be kept")
	}
}

func TestJoinNormalizedLocalities(t *testing.T) {
	ext, storage, places := fixtures()
	rows := Join(ext, storage, places, Options{NormalizedLocalities: true})
	if rows[0].Document.String("country") != "Czechia" || rows[0].Document.String("collector") != "Novak" {
		t.Fatalf("expected locality overlay, got %+v", rows[0].Document)
	}
	if rows[1].Document.String("country") != "" {
		t.Fatalf("unresolved locality must be blank")
	}
}

func TestJoinDoesNotMutateInputs(t *testing.T) {
	ext, storage, places := fixtures()
	Join(ext, storage, places, Options{NormalizedLocalities: true})
	if _, ok := ext[0].Document["boxName"]; ok {
		t.Fatalf("join mutated extraction input")
	}
	if ext[0].Document.String("country") != "copied" {
		t.Fatalf("join overwrote input locality")
	}
}

func TestLocalityIndexes(t *testing.T) {
	_, storage, places := fixtures()
	byCode := IndexLocalitiesByCode(places)
	if byCode["LC1"].Country != "Czechia" {
		t.Fatalf("expected first locality to win, got %+v", byCode["LC1"])
	}
	if loc, ok := FindTemplate(places, "l2"); !ok || loc.Country != "Slovakia" {
		t.Fatalf("expected key fallback, got %+v ok=%v", loc, ok)
	}
	if _, ok := FindTemplate(places, ""); ok {
		t.Fatalf("empty ref must not resolve")
	}
	if opts := LocalityCodeOptions(places); len(opts) != 1 || opts[0].Value != "LC1" {
		t.Fatalf("unexpected locality options %+v", opts)
	}
	if opts := BoxOptions(storage); len(opts) != 1 || opts[0].Value != "s1" || opts[0].Label != "Box A" {
		t.Fatalf("unexpected box options %+v", opts)
	}
}
