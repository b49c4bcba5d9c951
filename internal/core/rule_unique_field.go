package core

import (
	"context"
	"fmt"

	"molluscadb/pkg/domain"
)

// NewUniqueFieldRule returns an advisory rule warning when a written record
// shares a non-empty field value with another record of the same collection.
func NewUniqueFieldRule(name string, collection Collection, field string) Rule {
	return uniqueFieldRule{name: name, collection: collection, field: field}
}

type uniqueFieldRule struct {
	name       string
	collection Collection
	field      string
}

func (r uniqueFieldRule) Name() string { return r.name }

func (r uniqueFieldRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	var res Result
	var byValue map[string][]string
	for _, change := range changes {
		if change.Collection != r.collection || change.Action == domain.ActionDelete {
			continue
		}
		value := change.After.String(r.field)
		if value == "" {
			continue
		}
		if byValue == nil {
			byValue = make(map[string][]string)
			for _, rec := range view.List(r.collection) {
				if v := rec.Document.String(r.field); v != "" {
					byValue[v] = append(byValue[v], rec.Key)
				}
			}
		}
		if len(byValue[value]) < 2 {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:       r.name,
			Severity:   domain.SeverityWarn,
			Message:    fmt.Sprintf("%s %q is used by %d %s records", r.field, value, len(byValue[value]), r.collection),
			Collection: r.collection,
			Key:        change.Key,
		})
	}
	return res, nil
}
