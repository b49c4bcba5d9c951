// Package lookup joins extractions with their storage boxes and locality
// templates into display rows.
package lookup

import "molluscadb/pkg/domain"

// Options tunes Join.
type Options struct {
	// NormalizedLocalities resolves localityCode as a locality key and
	// overlays the locality fields instead of trusting copied values.
	NormalizedLocalities bool
}

// Join returns one display row per extraction, in input order. The box
// reference is resolved against storage by key and adds boxName and
// storageSite; unresolved references yield blank values. Inputs are never
// mutated.
func Join(extractions, storage, localities []domain.Record, opts Options) []domain.Record {
	boxes := IndexByKey(storage)
	var places map[string]domain.Record
	if opts.NormalizedLocalities {
		places = IndexByKey(localities)
	}
	rows := make([]domain.Record, 0, len(extractions))
	for _, ext := range extractions {
		row := ext.Clone()
		if row.Document == nil {
			row.Document = domain.Document{}
		}
		box, ok := boxes[ext.Document.String(domain.FieldBox)]
		if ok {
			row.Document[domain.FieldBoxName] = box.Document.String(domain.FieldBox)
			row.Document[domain.FieldStorageSite] = box.Document.String(domain.FieldStorageSite)
		} else {
			row.Document[domain.FieldBoxName] = ""
			row.Document[domain.FieldStorageSite] = ""
		}
		if opts.NormalizedLocalities {
			place, found := places[ext.Document.String(domain.FieldLocalityCode)]
			for _, field := range domain.LocalityFields {
				value := ""
				if found {
					value = place.Document.String(field)
				}
				row.Document[field] = value
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// IndexByKey maps record keys to records.
func IndexByKey(records []domain.Record) map[string]domain.Record {
	out := make(map[string]domain.Record, len(records))
	for _, r := range records {
		out[r.Key] = r
	}
	return out
}

// IndexLocalitiesByCode maps locality codes to their templates. When two
// localities share a code the first in store order wins.
func IndexLocalitiesByCode(localities []domain.Record) map[string]domain.Locality {
	out := make(map[string]domain.Locality, len(localities))
	for _, r := range localities {
		loc := domain.LocalityFromRecord(r)
		if loc.LocalityCode == "" {
			continue
		}
		if _, taken := out[loc.LocalityCode]; !taken {
			out[loc.LocalityCode] = loc
		}
	}
	return out
}

// FindTemplate resolves a locality by code, falling back to its key.
func FindTemplate(localities []domain.Record, ref string) (domain.Locality, bool) {
	if ref == "" {
		return domain.Locality{}, false
	}
	if loc, ok := IndexLocalitiesByCode(localities)[ref]; ok {
		return loc, true
	}
	if r, ok := IndexByKey(localities)[ref]; ok {
		return domain.LocalityFromRecord(r), true
	}
	return domain.Locality{}, false
}

// BoxOptions lists storage boxes as (key, box name) pairs in store order.
func BoxOptions(storage []domain.Record) []Option {
	out := make([]Option, 0, len(storage))
	for _, r := range storage {
		out = append(out, Option{Value: r.Key, Label: r.Document.String(domain.FieldBox)})
	}
	return out
}

// LocalityCodeOptions lists distinct locality codes in store order.
func LocalityCodeOptions(localities []domain.Record) []Option {
	seen := make(map[string]bool)
	var out []Option
	for _, r := range localities {
		code := r.Document.String(domain.FieldLocalityCode)
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, Option{Value: code, Label: code})
	}
	return out
}

// Option is a select choice: Value is written, Label is displayed.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}
