// Package domain defines the persistent collections, record types, and
// rule evaluation primitives used by molluscadb.
package domain

// Collection identifies a top-level collection in the document store.
type Collection string

// Supported collections. The values double as persistence bucket names.
const (
	// CollectionExtractions holds DNA extraction records.
	CollectionExtractions Collection = "extractions"
	// CollectionStorage holds physical storage boxes.
	CollectionStorage Collection = "storage"
	// CollectionLocations holds collection locality templates.
	CollectionLocations Collection = "locations"
	// CollectionPrimers holds primer records.
	CollectionPrimers Collection = "primers"
	// CollectionPcrPrograms holds PCR thermal-cycler programs.
	CollectionPcrPrograms Collection = "pcrPrograms"
)

// Collections lists every collection in a stable order.
func Collections() []Collection {
	return []Collection{
		CollectionExtractions,
		CollectionStorage,
		CollectionLocations,
		CollectionPrimers,
		CollectionPcrPrograms,
	}
}

// Valid reports whether c names a known collection.
func (c Collection) Valid() bool {
	for _, known := range Collections() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCollection accepts collection names with or without a trailing slash
// ("extractions/" and "extractions" are equivalent).
func ParseCollection(name string) (Collection, bool) {
	for len(name) > 0 && name[len(name)-1] == '/' {
		name = name[:len(name)-1]
	}
	c := Collection(name)
	return c, c.Valid()
}

// Extraction field names.
const (
	FieldIsolateCode      = "isolateCode"
	FieldSpeciesOrig      = "speciesOrig"
	FieldSpeciesUpdated   = "speciesUpdated"
	FieldProject          = "project"
	FieldDateIsolation    = "dateIsolation"
	FieldNgul             = "ngul"
	FieldBox              = "box"
	FieldLocalityCode     = "localityCode"
	FieldCountry          = "country"
	FieldState            = "state"
	FieldLocalityName     = "localityName"
	FieldLatitude         = "latitude"
	FieldLongitude        = "longitude"
	FieldAltitude         = "altitude"
	FieldHabitat          = "habitat"
	FieldDateCollection   = "dateCollection"
	FieldCollector        = "collector"
	FieldGel              = "gel"
	FieldPurification     = "purification"
	FieldStatus           = "status"
	FieldNote             = "note"
	FieldIsolateCodeGroup = "isolateCodeGroup"
)

// Derived (joined) field names attached by the lookup joiner.
const (
	FieldBoxName     = "boxName"
	FieldStorageSite = "storageSite"
)

// Loci lists the fixed sequencing loci tracked per extraction.
var Loci = []string{"cytB", "16S", "COI", "COII", "ITS1", "ITS2", "ELAV"}

// LocalityFields lists the fields copied from a locality template into an
// extraction. The locality code itself is not part of the list.
var LocalityFields = []string{
	FieldCountry,
	FieldState,
	FieldLocalityName,
	FieldLatitude,
	FieldLongitude,
	FieldAltitude,
	FieldHabitat,
	FieldDateCollection,
	FieldCollector,
}

// Extraction is a DNA sample record, the central entity of the system.
type Extraction struct {
	Key              string            `json:"key"`
	IsolateCode      string            `json:"isolateCode"`
	SpeciesOrig      string            `json:"speciesOrig"`
	SpeciesUpdated   string            `json:"speciesUpdated"`
	Project          string            `json:"project"`
	DateIsolation    string            `json:"dateIsolation"`
	Ngul             string            `json:"ngul"`
	Box              string            `json:"box"`
	LocalityCode     string            `json:"localityCode"`
	Country          string            `json:"country"`
	State            string            `json:"state"`
	LocalityName     string            `json:"localityName"`
	Latitude         string            `json:"latitude"`
	Longitude        string            `json:"longitude"`
	Altitude         string            `json:"altitude"`
	Habitat          string            `json:"habitat"`
	DateCollection   string            `json:"dateCollection"`
	Collector        string            `json:"collector"`
	Loci             map[string]string `json:"loci,omitempty"`
	Gel              string            `json:"gel"`
	Purification     string            `json:"purification"`
	Status           string            `json:"status"`
	Note             string            `json:"note"`
	IsolateCodeGroup []string          `json:"isolateCodeGroup,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// Storage is a physical box with a free-text storage site.
type Storage struct {
	Key         string            `json:"key"`
	Box         string            `json:"box"`
	StorageSite string            `json:"storageSite"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Locality is a collection site used as a copy-in template for extractions.
type Locality struct {
	Key            string            `json:"key"`
	LocalityCode   string            `json:"localityCode"`
	Country        string            `json:"country"`
	State          string            `json:"state"`
	LocalityName   string            `json:"localityName"`
	Latitude       string            `json:"latitude"`
	Longitude      string            `json:"longitude"`
	Altitude       string            `json:"altitude"`
	Habitat        string            `json:"habitat"`
	DateCollection string            `json:"dateCollection"`
	Collector      string            `json:"collector"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Primer describes an oligonucleotide used for amplification.
type Primer struct {
	Key         string            `json:"key"`
	Name        string            `json:"name"`
	Marker      string            `json:"marker"`
	Sequence    string            `json:"sequence"`
	Direction   string            `json:"direction"`
	MeltingTemp string            `json:"meltingTemp"`
	Reference   string            `json:"reference"`
	Note        string            `json:"note"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// PcrProgram is a named thermal-cycling profile. Step parameters are kept as
// free text; no numeric typing is applied.
type PcrProgram struct {
	Key                     string            `json:"key"`
	Name                    string            `json:"name"`
	InitialDenaturationTemp string            `json:"initialDenaturationTemp"`
	InitialDenaturationTime string            `json:"initialDenaturationTime"`
	DenaturationTemp        string            `json:"denaturationTemp"`
	DenaturationTime        string            `json:"denaturationTime"`
	AnnealingTemp           string            `json:"annealingTemp"`
	AnnealingTime           string            `json:"annealingTime"`
	ExtensionTemp           string            `json:"extensionTemp"`
	ExtensionTime           string            `json:"extensionTime"`
	Cycles                  string            `json:"cycles"`
	FinalExtensionTemp      string            `json:"finalExtensionTemp"`
	FinalExtensionTime      string            `json:"finalExtensionTime"`
	Hold                    string            `json:"hold"`
	Extra                   map[string]string `json:"extra,omitempty"`
}

// Action enumerates write operations captured in a transaction change log.
type Action string

// Change actions.
const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionReplace Action = "replace"
	ActionDelete  Action = "delete"
)

// Change describes a mutation applied to a record during a transaction.
type Change struct {
	Collection Collection
	Action     Action
	Key        string
	Fields     []string
	Before     Document
	After      Document
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a rule finding against a record.
type Violation struct {
	Rule       string     `json:"rule"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Collection Collection `json:"collection"`
	Key        string     `json:"key,omitempty"`
}

// Result aggregates rule violations produced during a transaction.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}

// ErrNotFound is returned when a record key does not exist in its collection.
type ErrNotFound struct {
	Collection Collection
	Key        string
}

func (e ErrNotFound) Error() string {
	return string(e.Collection) + " " + e.Key + " not found"
}
