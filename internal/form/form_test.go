package form_test

import (
	"context"
	"errors"
	"testing"

	"molluscadb/internal/form"
	"molluscadb/pkg/domain"
)

type fakeCreator struct {
	docs []domain.Document
	err  error
}

func (c *fakeCreator) Create(_ context.Context, _ domain.Collection, doc domain.Document) (domain.Record, domain.Result, error) {
	if c.err != nil {
		return domain.Record{}, domain.Result{}, c.err
	}
	c.docs = append(c.docs, doc.Clone())
	return domain.Record{Key: "k-new", Document: doc.Clone()}, domain.Result{}, nil
}

func newForm(t *testing.T, c domain.Collection) (*form.Form, *fakeCreator, *form.Inbox) {
	t.Helper()
	schema, ok := form.SchemaFor(c)
	if !ok {
		t.Fatalf("missing schema for %s", c)
	}
	creator := &fakeCreator{}
	inbox := form.NewInbox(10)
	return form.New(schema, creator, inbox), creator, inbox
}

func TestSubmitWithMissingRequiredFieldDoesNotCreate(t *testing.T) {
	f, creator, inbox := newForm(t, domain.CollectionExtractions)
	if err := f.Set("speciesOrig", "Bythinella austriaca"); err != nil {
		t.Fatalf("set: %v", err)
	}
	_, _, err := f.Submit(context.Background())
	var invalid form.ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if invalid.Fields["isolateCode"] == "" {
		t.Fatalf("expected error on isolateCode, got %+v", invalid.Fields)
	}
	if len(creator.docs) != 0 {
		t.Fatalf("no create expected")
	}
	if f.Value("speciesOrig") == "" {
		t.Fatalf("form must stay populated after a failed submit")
	}
	if n := inbox.Drain(); len(n) != 0 {
		t.Fatalf("no notification expected, got %+v", n)
	}
	if err := f.Set("isolateCode", "MOL-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok := f.Errors()["isolateCode"]; ok {
		t.Fatalf("filling a required field clears its error")
	}
}

func TestDuplicateBlurBlocksSubmitButNotTyping(t *testing.T) {
	f, creator, _ := newForm(t, domain.CollectionExtractions)
	f.SetRecords([]domain.Record{{Key: "k1", Document: domain.Document{"isolateCode": "MOL-1"}}})
	if err := f.Set("isolateCode", "MOL-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	msg, err := f.Blur("isolateCode")
	if err != nil || msg == "" {
		t.Fatalf("expected duplicate message, got %q %v", msg, err)
	}
	if err := f.Set("speciesOrig", "Bythinella"); err != nil {
		t.Fatalf("typing must continue after a duplicate error: %v", err)
	}
	if err := f.Set("isolateCode", "MOL-1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, _, err := f.Submit(context.Background()); err == nil {
		t.Fatalf("expected duplicate to block submission")
	}
	if len(creator.docs) != 0 {
		t.Fatalf("no create expected")
	}
	if err := f.Set("isolateCode", "MOL-2"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if msg, _ := f.Blur("isolateCode"); msg != "" {
		t.Fatalf("expected free code, got %q", msg)
	}
	if _, _, err := f.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitStripsEmptyFieldsAndNotifies(t *testing.T) {
	f, creator, inbox := newForm(t, domain.CollectionStorage)
	if err := f.Set("box", "B7"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := f.Set("storageSite", "  "); err != nil {
		t.Fatalf("set: %v", err)
	}
	rec, _, err := f.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Key == "" || len(creator.docs) != 1 {
		t.Fatalf("expected one create, got %+v", creator.docs)
	}
	if _, present := creator.docs[0]["storageSite"]; present {
		t.Fatalf("empty field must be stripped, got %+v", creator.docs[0])
	}
	notes := inbox.Drain()
	if len(notes) != 1 || notes[0].Level != form.LevelSuccess || notes[0].Key != rec.Key {
		t.Fatalf("expected one success notification, got %+v", notes)
	}
	if f.Value("box") != "" {
		t.Fatalf("form must reset after submit")
	}
}

func TestFailedCreateDoesNotNotify(t *testing.T) {
	f, creator, inbox := newForm(t, domain.CollectionPrimers)
	creator.err = errors.New("store offline")
	_ = f.Set("name", "LCO1490")
	_ = f.Set("sequence", "GGTCAACAAATCATAAAGATATTGG")
	if _, _, err := f.Submit(context.Background()); err == nil {
		t.Fatalf("expected create error")
	}
	if len(inbox.Drain()) != 0 {
		t.Fatalf("failed write must not notify")
	}
	if f.Value("name") != "LCO1490" {
		t.Fatalf("values must stay after failed write")
	}
}

func TestApplyLocalityCopiesTemplate(t *testing.T) {
	f, creator, _ := newForm(t, domain.CollectionExtractions)
	localities := []domain.Record{{Key: "loc1", Document: domain.Document{
		"localityCode": "CZ-01",
		"country":      "CZ",
		"habitat":      "spring",
	}}}
	f.SetLocalities(localities)
	if err := f.ApplyLocality("CZ-01"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if f.Value("country") != "CZ" || f.Value("habitat") != "spring" || f.Value("localityCode") != "CZ-01" {
		t.Fatalf("expected template copied, got %+v", f.State().Values)
	}
	localities[0].Document["country"] = "AT"
	if f.Value("country") != "CZ" {
		t.Fatalf("copy must be by value")
	}
	var notFound domain.ErrNotFound
	if err := f.ApplyLocality("nowhere"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = f.Set("isolateCode", "MOL-3")
	_ = f.Set("speciesOrig", "Bythinella")
	if _, _, err := f.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if creator.docs[0].String("country") != "CZ" {
		t.Fatalf("expected copied fields submitted, got %+v", creator.docs[0])
	}
	if _, present := creator.docs[0]["state"]; present {
		t.Fatalf("blank template fields must be stripped")
	}
}

func TestUnknownFieldAndSchemas(t *testing.T) {
	f, _, _ := newForm(t, domain.CollectionStorage)
	if err := f.Set("nope", "x"); !errors.Is(err, form.ErrUnknownField) {
		t.Fatalf("expected ErrUnknownField, got %v", err)
	}
	if err := f.ApplyLocality("x"); !errors.Is(err, form.ErrUnknownField) {
		t.Fatalf("storage form has no locality code, got %v", err)
	}
	for _, c := range domain.Collections() {
		schema, ok := form.SchemaFor(c)
		if !ok || len(schema.Fields) == 0 {
			t.Fatalf("expected schema for %s", c)
		}
	}
	if _, ok := form.SchemaFor("bogus"); ok {
		t.Fatalf("unexpected schema for unknown collection")
	}
}

func TestInboxKeepsMostRecent(t *testing.T) {
	inbox := form.NewInbox(2)
	for _, msg := range []string{"a", "b", "c"} {
		inbox.Notify(form.Notification{Message: msg})
	}
	got := inbox.Drain()
	if len(got) != 2 || got[0].Message != "b" || got[1].ID == "" || got[1].At.IsZero() {
		t.Fatalf("unexpected inbox contents %+v", got)
	}
	if len(inbox.Drain()) != 0 {
		t.Fatalf("drain must clear")
	}
}
