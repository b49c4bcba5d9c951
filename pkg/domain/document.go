package domain

import (
	"fmt"
	"sort"
	"strconv"
)

// Document is a schema-less record body as held by the collection store.
// Values are strings, except isolateCodeGroup which is a []string.
type Document map[string]any

// Record pairs a store-assigned key with its document.
type Record struct {
	Key      string   `json:"key"`
	Document Document `json:"document"`
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		switch val := v.(type) {
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			out[k] = append([]any(nil), val...)
		default:
			out[k] = v
		}
	}
	return out
}

// String returns the string-coerced value for field.
func (d Document) String(field string) string {
	if d == nil {
		return ""
	}
	return Stringify(d[field])
}

// Strings returns a list value, tolerating both []string and decoded JSON []any.
func (d Document) Strings(field string) []string {
	if d == nil {
		return nil
	}
	return toStrings(d[field])
}

// Fields returns the document field names in ascending order.
func (d Document) Fields() []string {
	out := make([]string, 0, len(d))
	for k := range d {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalize converts decoded JSON values into the canonical in-memory shapes:
// []any of strings becomes []string and scalars become strings.
func (d Document) Normalize() Document {
	for k, v := range d {
		switch val := v.(type) {
		case nil, string, []string:
		case []any:
			d[k] = toStrings(val)
		default:
			d[k] = Stringify(val)
		}
	}
	return d
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	return Record{Key: r.Key, Document: r.Document.Clone()}
}

// Stringify coerces a document value to its display string. A missing value
// and the empty string both stringify to "".
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []string:
		return joinList(v)
	case []any:
		return joinList(toStrings(v))
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func joinList(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}

func toStrings(value any) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, Stringify(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{Stringify(v)}
	}
}

// SameValue compares two document values on their string-coerced form.
func SameValue(a, b any) bool {
	return Stringify(a) == Stringify(b)
}

func putString(doc Document, field, value string) {
	if value != "" {
		doc[field] = value
	}
}

func putExtra(doc Document, extra map[string]string) {
	for k, v := range extra {
		if _, taken := doc[k]; taken {
			continue
		}
		putString(doc, k, v)
	}
}

func extractionRefs(e *Extraction) map[string]*string {
	return map[string]*string{
		FieldIsolateCode:    &e.IsolateCode,
		FieldSpeciesOrig:    &e.SpeciesOrig,
		FieldSpeciesUpdated: &e.SpeciesUpdated,
		FieldProject:        &e.Project,
		FieldDateIsolation:  &e.DateIsolation,
		FieldNgul:           &e.Ngul,
		FieldBox:            &e.Box,
		FieldLocalityCode:   &e.LocalityCode,
		FieldCountry:        &e.Country,
		FieldState:          &e.State,
		FieldLocalityName:   &e.LocalityName,
		FieldLatitude:       &e.Latitude,
		FieldLongitude:      &e.Longitude,
		FieldAltitude:       &e.Altitude,
		FieldHabitat:        &e.Habitat,
		FieldDateCollection: &e.DateCollection,
		FieldCollector:      &e.Collector,
		FieldGel:            &e.Gel,
		FieldPurification:   &e.Purification,
		FieldStatus:         &e.Status,
		FieldNote:           &e.Note,
	}
}

func isLocus(field string) bool {
	for _, l := range Loci {
		if l == field {
			return true
		}
	}
	return false
}

// ExtractionFromRecord decodes an extraction from a stored record. Fields
// outside the fixed schema land in Extra.
func ExtractionFromRecord(r Record) Extraction {
	e := Extraction{Key: r.Key}
	refs := extractionRefs(&e)
	for k, v := range r.Document {
		switch {
		case k == FieldIsolateCodeGroup:
			e.IsolateCodeGroup = toStrings(v)
		case refs[k] != nil:
			*refs[k] = Stringify(v)
		case isLocus(k):
			if e.Loci == nil {
				e.Loci = make(map[string]string)
			}
			e.Loci[k] = Stringify(v)
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]string)
			}
			e.Extra[k] = Stringify(v)
		}
	}
	return e
}

// Document encodes the extraction, omitting empty fields.
func (e Extraction) Document() Document {
	doc := Document{}
	for field, ref := range extractionRefs(&e) {
		putString(doc, field, *ref)
	}
	for locus, v := range e.Loci {
		putString(doc, locus, v)
	}
	if len(e.IsolateCodeGroup) > 0 {
		doc[FieldIsolateCodeGroup] = append([]string(nil), e.IsolateCodeGroup...)
	}
	putExtra(doc, e.Extra)
	return doc
}

// LocalityValues returns the locality template fields of the extraction.
func (e Extraction) LocalityValues() map[string]string {
	return map[string]string{
		FieldCountry:        e.Country,
		FieldState:          e.State,
		FieldLocalityName:   e.LocalityName,
		FieldLatitude:       e.Latitude,
		FieldLongitude:      e.Longitude,
		FieldAltitude:       e.Altitude,
		FieldHabitat:        e.Habitat,
		FieldDateCollection: e.DateCollection,
		FieldCollector:      e.Collector,
	}
}

func storageRefs(s *Storage) map[string]*string {
	return map[string]*string{
		FieldBox:         &s.Box,
		FieldStorageSite: &s.StorageSite,
	}
}

// StorageFromRecord decodes a storage box.
func StorageFromRecord(r Record) Storage {
	s := Storage{Key: r.Key}
	s.Extra = decodeInto(r.Document, storageRefs(&s))
	return s
}

// Document encodes the storage box, omitting empty fields.
func (s Storage) Document() Document {
	return encodeFrom(storageRefs(&s), s.Extra)
}

func localityRefs(l *Locality) map[string]*string {
	return map[string]*string{
		FieldLocalityCode:   &l.LocalityCode,
		FieldCountry:        &l.Country,
		FieldState:          &l.State,
		FieldLocalityName:   &l.LocalityName,
		FieldLatitude:       &l.Latitude,
		FieldLongitude:      &l.Longitude,
		FieldAltitude:       &l.Altitude,
		FieldHabitat:        &l.Habitat,
		FieldDateCollection: &l.DateCollection,
		FieldCollector:      &l.Collector,
	}
}

// LocalityFromRecord decodes a locality template.
func LocalityFromRecord(r Record) Locality {
	l := Locality{Key: r.Key}
	l.Extra = decodeInto(r.Document, localityRefs(&l))
	return l
}

// Document encodes the locality, omitting empty fields.
func (l Locality) Document() Document {
	return encodeFrom(localityRefs(&l), l.Extra)
}

// TemplateFields returns the nine fields copied into an extraction when the
// locality is chosen. Empty values are included so a copy overwrites stale data.
func (l Locality) TemplateFields() Document {
	doc := Document{}
	refs := localityRefs(&l)
	for _, field := range LocalityFields {
		doc[field] = *refs[field]
	}
	return doc
}

func primerRefs(p *Primer) map[string]*string {
	return map[string]*string{
		"name":        &p.Name,
		"marker":      &p.Marker,
		"sequence":    &p.Sequence,
		"direction":   &p.Direction,
		"meltingTemp": &p.MeltingTemp,
		"reference":   &p.Reference,
		FieldNote:     &p.Note,
	}
}

// PrimerFromRecord decodes a primer.
func PrimerFromRecord(r Record) Primer {
	p := Primer{Key: r.Key}
	p.Extra = decodeInto(r.Document, primerRefs(&p))
	return p
}

// Document encodes the primer, omitting empty fields.
func (p Primer) Document() Document {
	return encodeFrom(primerRefs(&p), p.Extra)
}

func pcrProgramRefs(p *PcrProgram) map[string]*string {
	return map[string]*string{
		"name":                    &p.Name,
		"initialDenaturationTemp": &p.InitialDenaturationTemp,
		"initialDenaturationTime": &p.InitialDenaturationTime,
		"denaturationTemp":        &p.DenaturationTemp,
		"denaturationTime":        &p.DenaturationTime,
		"annealingTemp":           &p.AnnealingTemp,
		"annealingTime":           &p.AnnealingTime,
		"extensionTemp":           &p.ExtensionTemp,
		"extensionTime":           &p.ExtensionTime,
		"cycles":                  &p.Cycles,
		"finalExtensionTemp":      &p.FinalExtensionTemp,
		"finalExtensionTime":      &p.FinalExtensionTime,
		"hold":                    &p.Hold,
	}
}

// PcrProgramFromRecord decodes a PCR program.
func PcrProgramFromRecord(r Record) PcrProgram {
	p := PcrProgram{Key: r.Key}
	p.Extra = decodeInto(r.Document, pcrProgramRefs(&p))
	return p
}

// Document encodes the PCR program, omitting empty fields.
func (p PcrProgram) Document() Document {
	return encodeFrom(pcrProgramRefs(&p), p.Extra)
}

func decodeInto(doc Document, refs map[string]*string) map[string]string {
	var extra map[string]string
	for k, v := range doc {
		if ref, ok := refs[k]; ok {
			*ref = Stringify(v)
			continue
		}
		if extra == nil {
			extra = make(map[string]string)
		}
		extra[k] = Stringify(v)
	}
	return extra
}

func encodeFrom(refs map[string]*string, extra map[string]string) Document {
	doc := Document{}
	for field, ref := range refs {
		putString(doc, field, *ref)
	}
	putExtra(doc, extra)
	return doc
}
