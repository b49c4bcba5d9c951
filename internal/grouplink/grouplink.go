// Package grouplink maintains isolate code groups: co-located extractions
// that carry the full group, their own code included, in isolateCodeGroup.
// Every mutation rewrites the touched members inside one store transaction.
package grouplink

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"molluscadb/pkg/domain"
)

// MatchFields must be identical for two extractions to share a group.
var MatchFields = []string{
	domain.FieldCountry,
	domain.FieldLatitude,
	domain.FieldLongitude,
	domain.FieldState,
	domain.FieldLocalityName,
	domain.FieldDateCollection,
	domain.FieldCollector,
	domain.FieldHabitat,
	domain.FieldSpeciesOrig,
	domain.FieldAltitude,
}

var (
	// ErrSelfLink is returned when linking a record to itself.
	ErrSelfLink = errors.New("grouplink: record cannot join its own group")
	// ErrNoIsolateCode is returned when a record to link has no isolate code.
	ErrNoIsolateCode = errors.New("grouplink: record has no isolate code")
	// ErrNotCandidate is returned when two records differ in a matched field.
	ErrNotCandidate = errors.New("grouplink: records do not share locality and species")
	// ErrNotMember is returned when unlinking a record that is not in the group.
	ErrNotMember = errors.New("grouplink: record is not a group member")
)

// Service runs a named transaction against the store.
type Service interface {
	RunInTransaction(ctx context.Context, operation string, c domain.Collection, fn func(domain.Transaction) error) (domain.Result, error)
}

// Outcome reports a group mutation.
type Outcome struct {
	Group   []string      `json:"group,omitempty"`
	Touched []string      `json:"touched"`
	Deleted string        `json:"deleted,omitempty"`
	Result  domain.Result `json:"result"`
}

// Linker applies group mutations.
type Linker struct {
	svc Service
}

// New returns a Linker writing through svc.
func New(svc Service) *Linker {
	return &Linker{svc: svc}
}

// Matches reports whether a and b agree on every matched field.
func Matches(a, b domain.Record) bool {
	for _, f := range MatchFields {
		if a.Document.String(f) != b.Document.String(f) {
			return false
		}
	}
	return true
}

// Candidates returns the records that could join a's group: matching records
// other than a that are not already members.
func Candidates(a domain.Record, all []domain.Record) []domain.Record {
	group := a.Document.Strings(domain.FieldIsolateCodeGroup)
	var out []domain.Record
	for _, r := range all {
		if r.Key == a.Key {
			continue
		}
		if slices.Contains(group, r.Document.String(domain.FieldIsolateCode)) {
			continue
		}
		if Matches(a, r) {
			out = append(out, r)
		}
	}
	return out
}

// Members returns the other records whose code is in a's group, in store
// order. The record's own code is filtered out.
func Members(a domain.Record, all []domain.Record) []domain.Record {
	group := a.Document.Strings(domain.FieldIsolateCodeGroup)
	var out []domain.Record
	for _, r := range all {
		if r.Key == a.Key {
			continue
		}
		if slices.Contains(group, r.Document.String(domain.FieldIsolateCode)) {
			out = append(out, r)
		}
	}
	return out
}

// Union merges both groups and both codes, deduplicated, blanks dropped.
func Union(a, b domain.Record) []string {
	var out []string
	add := func(codes ...string) {
		for _, c := range codes {
			if c != "" && !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	add(a.Document.Strings(domain.FieldIsolateCodeGroup)...)
	add(a.Document.String(domain.FieldIsolateCode))
	add(b.Document.Strings(domain.FieldIsolateCodeGroup)...)
	add(b.Document.String(domain.FieldIsolateCode))
	return out
}

func load(tx domain.Transaction, key string) (domain.Record, error) {
	r, ok := tx.Get(domain.CollectionExtractions, key)
	if !ok {
		return domain.Record{}, domain.ErrNotFound{Collection: domain.CollectionExtractions, Key: key}
	}
	return r, nil
}

// Link adds b to a's group. Every record whose code is in the union of both
// groups is rewritten with the full union.
func (l *Linker) Link(ctx context.Context, aKey, bKey string) (Outcome, error) {
	if aKey == bKey {
		return Outcome{}, ErrSelfLink
	}
	var out Outcome
	res, err := l.svc.RunInTransaction(ctx, "link_group", domain.CollectionExtractions, func(tx domain.Transaction) error {
		a, err := load(tx, aKey)
		if err != nil {
			return err
		}
		b, err := load(tx, bKey)
		if err != nil {
			return err
		}
		if a.Document.String(domain.FieldIsolateCode) == "" || b.Document.String(domain.FieldIsolateCode) == "" {
			return ErrNoIsolateCode
		}
		if !Matches(a, b) {
			return ErrNotCandidate
		}
		union := Union(a, b)
		out.Group = union
		for _, r := range tx.List(domain.CollectionExtractions) {
			if !slices.Contains(union, r.Document.String(domain.FieldIsolateCode)) {
				continue
			}
			group := append([]string(nil), union...)
			if _, err := tx.Update(domain.CollectionExtractions, r.Key, domain.Document{domain.FieldIsolateCodeGroup: group}); err != nil {
				return fmt.Errorf("update %s: %w", r.Key, err)
			}
			out.Touched = append(out.Touched, r.Key)
		}
		return nil
	})
	out.Result = res
	if err != nil {
		return Outcome{Result: res}, err
	}
	return out, nil
}

// Unlink removes b from a's group. Every record listing b's code drops it
// and b's own group is cleared.
func (l *Linker) Unlink(ctx context.Context, aKey, bKey string) (Outcome, error) {
	var out Outcome
	res, err := l.svc.RunInTransaction(ctx, "unlink_group", domain.CollectionExtractions, func(tx domain.Transaction) error {
		a, err := load(tx, aKey)
		if err != nil {
			return err
		}
		b, err := load(tx, bKey)
		if err != nil {
			return err
		}
		code := b.Document.String(domain.FieldIsolateCode)
		if code == "" || aKey == bKey || !slices.Contains(a.Document.Strings(domain.FieldIsolateCodeGroup), code) {
			return ErrNotMember
		}
		touched, err := removeCode(tx, code, bKey)
		if err != nil {
			return err
		}
		if _, err := tx.Update(domain.CollectionExtractions, bKey, domain.Document{domain.FieldIsolateCodeGroup: []string{}}); err != nil {
			return fmt.Errorf("clear %s: %w", bKey, err)
		}
		out.Touched = append(touched, bKey)
		if updated, ok := tx.Get(domain.CollectionExtractions, aKey); ok {
			out.Group = updated.Document.Strings(domain.FieldIsolateCodeGroup)
		}
		return nil
	})
	out.Result = res
	if err != nil {
		return Outcome{Result: res}, err
	}
	return out, nil
}

// DeleteExtraction removes key's code from every other record listing it,
// then deletes the record.
func (l *Linker) DeleteExtraction(ctx context.Context, key string) (Outcome, error) {
	var out Outcome
	res, err := l.svc.RunInTransaction(ctx, "delete_extractions", domain.CollectionExtractions, func(tx domain.Transaction) error {
		a, err := load(tx, key)
		if err != nil {
			return err
		}
		if code := a.Document.String(domain.FieldIsolateCode); code != "" {
			if out.Touched, err = removeCode(tx, code, key); err != nil {
				return err
			}
		}
		if err := tx.Delete(domain.CollectionExtractions, key); err != nil {
			return err
		}
		out.Deleted = key
		return nil
	})
	out.Result = res
	if err != nil {
		return Outcome{Result: res}, err
	}
	return out, nil
}

// removeCode drops code from the group of every record except skip that
// lists it, and returns the rewritten keys.
func removeCode(tx domain.Transaction, code, skip string) ([]string, error) {
	var touched []string
	for _, r := range tx.List(domain.CollectionExtractions) {
		if r.Key == skip {
			continue
		}
		group := r.Document.Strings(domain.FieldIsolateCodeGroup)
		if !slices.Contains(group, code) {
			continue
		}
		kept := slices.DeleteFunc(group, func(c string) bool { return c == code })
		if _, err := tx.Update(domain.CollectionExtractions, r.Key, domain.Document{domain.FieldIsolateCodeGroup: kept}); err != nil {
			return nil, fmt.Errorf("update %s: %w", r.Key, err)
		}
		touched = append(touched, r.Key)
	}
	return touched, nil
}
