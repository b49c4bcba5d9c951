package core

import "molluscadb/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in advisory
// policy set. None of the default rules block a commit.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	for _, rule := range DefaultRules() {
		engine.Register(rule)
	}
	return engine
}

// DefaultRules returns the built-in rules in evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		NewUniqueFieldRule("unique_isolate_code", domain.CollectionExtractions, domain.FieldIsolateCode),
		NewUniqueFieldRule("unique_primer_name", domain.CollectionPrimers, "name"),
		NewUniqueFieldRule("unique_pcr_program_name", domain.CollectionPcrPrograms, "name"),
		NewUniqueFieldRule("unique_storage_box", domain.CollectionStorage, domain.FieldBox),
		NewUniqueFieldRule("unique_locality_code", domain.CollectionLocations, domain.FieldLocalityCode),
		NewGroupSymmetryRule(),
	}
}
