// Package form implements the record entry forms: required-field checks,
// advisory duplicate checks on blur, and a single create on submit.
package form

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"molluscadb/internal/lookup"
	"molluscadb/pkg/domain"
)

// ErrUnknownField is returned when setting a field the schema does not have.
var ErrUnknownField = errors.New("form: unknown field")

// ValidationError maps field names to messages. No write happens when it is
// returned.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return "form: " + strings.Join(parts, "; ")
}

// Creator creates a record under a generated key.
type Creator interface {
	Create(ctx context.Context, c domain.Collection, doc domain.Document) (domain.Record, domain.Result, error)
}

// State is the rendered form.
type State struct {
	Collection domain.Collection `json:"collection"`
	Fields     []Field           `json:"fields"`
	Values     map[string]string `json:"values"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// Form holds the input values and field errors of one collection form.
// It is not safe for concurrent use.
type Form struct {
	schema     Schema
	creator    Creator
	notifier   Notifier
	values     map[string]string
	errs       map[string]string
	records    []domain.Record
	localities []domain.Record
}

// New returns an empty form. notifier may be nil.
func New(schema Schema, creator Creator, notifier Notifier) *Form {
	return &Form{
		schema:   schema,
		creator:  creator,
		notifier: notifier,
		values:   make(map[string]string),
		errs:     make(map[string]string),
	}
}

// Schema returns the form schema.
func (f *Form) Schema() Schema { return f.schema }

// SetRecords replaces the loaded records used by duplicate checks.
func (f *Form) SetRecords(records []domain.Record) { f.records = records }

// SetLocalities replaces the locality templates used by ApplyLocality.
func (f *Form) SetLocalities(records []domain.Record) { f.localities = records }

// Set stores a typed value. A filled value clears a missing-value error;
// duplicate errors stay until the next blur.
func (f *Form) Set(name, value string) error {
	field, ok := f.schema.Field(name)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	f.values[name] = value
	if field.Required && strings.TrimSpace(value) != "" && f.errs[name] == requiredMessage(field) {
		delete(f.errs, name)
	}
	return nil
}

// Value returns the current value of a field.
func (f *Form) Value(name string) string { return f.values[name] }

// Errors returns a copy of the field errors.
func (f *Form) Errors() map[string]string {
	out := make(map[string]string, len(f.errs))
	for k, v := range f.errs {
		out[k] = v
	}
	return out
}

// Blur runs the duplicate check of a unique field and returns its error
// message, or "" when the value is free.
func (f *Form) Blur(name string) (string, error) {
	field, ok := f.schema.Field(name)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownField, name)
	}
	if !field.Unique {
		return f.errs[name], nil
	}
	if msg := f.duplicate(field); msg != "" {
		f.errs[name] = msg
		return msg, nil
	}
	delete(f.errs, name)
	return "", nil
}

func (f *Form) duplicate(field Field) string {
	value := strings.TrimSpace(f.values[field.Name])
	if value == "" {
		return ""
	}
	for _, r := range f.records {
		if strings.TrimSpace(r.Document.String(field.Name)) == value {
			return field.Label + " " + value + " already exists"
		}
	}
	return ""
}

func requiredMessage(field Field) string {
	return field.Label + " is required"
}

// ApplyLocality sets the locality code and copies the template's fields by
// value. Later template edits do not reach the form.
func (f *Form) ApplyLocality(code string) error {
	if _, ok := f.schema.Field(domain.FieldLocalityCode); !ok {
		return fmt.Errorf("%w %q", ErrUnknownField, domain.FieldLocalityCode)
	}
	loc, ok := lookup.FindTemplate(f.localities, code)
	if !ok {
		return domain.ErrNotFound{Collection: domain.CollectionLocations, Key: code}
	}
	f.values[domain.FieldLocalityCode] = loc.LocalityCode
	for name, value := range loc.TemplateFields() {
		if _, known := f.schema.Field(name); known {
			f.values[name] = domain.Stringify(value)
		}
	}
	return nil
}

// Validate checks required fields and reruns duplicate checks. It returns
// a ValidationError when any field has an error.
func (f *Form) Validate() error {
	for _, field := range f.schema.Fields {
		if field.Required && strings.TrimSpace(f.values[field.Name]) == "" {
			f.errs[field.Name] = requiredMessage(field)
			continue
		}
		if field.Unique {
			if msg := f.duplicate(field); msg != "" {
				f.errs[field.Name] = msg
			} else {
				delete(f.errs, field.Name)
			}
		}
	}
	if len(f.errs) > 0 {
		return ValidationError{Fields: f.Errors()}
	}
	return nil
}

// Document returns the non-empty values as a new document.
func (f *Form) Document() domain.Document {
	doc := domain.Document{}
	for _, field := range f.schema.Fields {
		if v := strings.TrimSpace(f.values[field.Name]); v != "" {
			doc[field.Name] = v
		}
	}
	return doc
}

// Submit validates and creates one record. On failure nothing is written and
// the values stay for correction. On success the form is cleared and a
// notification is sent.
func (f *Form) Submit(ctx context.Context) (domain.Record, domain.Result, error) {
	if err := f.Validate(); err != nil {
		return domain.Record{}, domain.Result{}, err
	}
	rec, res, err := f.creator.Create(ctx, f.schema.Collection, f.Document())
	if err != nil {
		return domain.Record{}, res, err
	}
	if f.notifier != nil {
		f.notifier.Notify(Notification{
			Level:      LevelSuccess,
			Message:    "Saved " + describe(f.schema, rec),
			Collection: f.schema.Collection,
			Key:        rec.Key,
		})
	}
	f.Reset()
	return rec, res, nil
}

func describe(s Schema, rec domain.Record) string {
	for _, field := range s.Fields {
		if field.Unique {
			if v := rec.Document.String(field.Name); v != "" {
				return v
			}
		}
	}
	return rec.Key
}

// Reset clears values and errors.
func (f *Form) Reset() {
	f.values = make(map[string]string)
	f.errs = make(map[string]string)
}

// State returns the rendered form.
func (f *Form) State() State {
	values := make(map[string]string, len(f.values))
	for k, v := range f.values {
		values[k] = v
	}
	st := State{Collection: f.schema.Collection, Fields: f.schema.Fields, Values: values}
	if len(f.errs) > 0 {
		st.Errors = f.Errors()
	}
	return st
}
