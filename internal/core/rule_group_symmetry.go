package core

import (
	"context"
	"fmt"

	"molluscadb/pkg/domain"
)

// NewGroupSymmetryRule returns a log-level rule reporting isolate code groups
// that are not mirrored on every member after a transaction.
func NewGroupSymmetryRule() Rule {
	return groupSymmetryRule{}
}

type groupSymmetryRule struct{}

func (groupSymmetryRule) Name() string { return "isolate_group_symmetry" }

func (groupSymmetryRule) Evaluate(_ context.Context, view domain.RuleView, changes []Change) (Result, error) {
	var res Result
	var byCode map[string]Record
	for _, change := range changes {
		if change.Collection != domain.CollectionExtractions || change.Action == domain.ActionDelete {
			continue
		}
		self := change.After.String(domain.FieldIsolateCode)
		group := change.After.Strings(domain.FieldIsolateCodeGroup)
		if self == "" || len(group) == 0 {
			continue
		}
		if byCode == nil {
			byCode = make(map[string]Record)
			for _, rec := range view.List(domain.CollectionExtractions) {
				if code := rec.Document.String(domain.FieldIsolateCode); code != "" {
					byCode[code] = rec
				}
			}
		}
		for _, member := range group {
			if member == self {
				continue
			}
			peer, ok := byCode[member]
			if ok && contains(peer.Document.Strings(domain.FieldIsolateCodeGroup), self) {
				continue
			}
			res.Violations = append(res.Violations, Violation{
				Rule:       "isolate_group_symmetry",
				Severity:   domain.SeverityLog,
				Message:    fmt.Sprintf("group of %s lists %s but %s does not list %s", self, member, member, self),
				Collection: domain.CollectionExtractions,
				Key:        change.Key,
			})
		}
	}
	return res, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
