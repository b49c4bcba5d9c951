package form

import "molluscadb/pkg/domain"

// Field is one labeled form input.
type Field struct {
	Name     string `json:"name"`
	Label    string `json:"label"`
	Required bool   `json:"required,omitempty"`
	// Unique fields are checked on blur against the loaded records. The
	// check is advisory; the store does not enforce it.
	Unique bool `json:"unique,omitempty"`
}

// Schema is the field set of one collection's form.
type Schema struct {
	Collection domain.Collection `json:"collection"`
	Fields     []Field           `json:"fields"`
}

// Field returns the named field.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func field(name, label string) Field { return Field{Name: name, Label: label} }

func required(f Field) Field {
	f.Required = true
	return f
}

func unique(f Field) Field {
	f.Unique = true
	return f
}

func localityFields() []Field {
	return []Field{
		field(domain.FieldCountry, "Country"),
		field(domain.FieldState, "State"),
		field(domain.FieldLocalityName, "Locality"),
		field(domain.FieldLatitude, "Latitude"),
		field(domain.FieldLongitude, "Longitude"),
		field(domain.FieldAltitude, "Altitude"),
		field(domain.FieldHabitat, "Habitat"),
		field(domain.FieldDateCollection, "Date of collection"),
		field(domain.FieldCollector, "Collector"),
	}
}

// SchemaFor returns the form schema of a collection.
func SchemaFor(c domain.Collection) (Schema, bool) {
	switch c {
	case domain.CollectionExtractions:
		fields := []Field{
			required(unique(field(domain.FieldIsolateCode, "Isolate code"))),
			required(field(domain.FieldSpeciesOrig, "Species (original)")),
			field(domain.FieldSpeciesUpdated, "Species (updated)"),
			field(domain.FieldProject, "Project"),
			field(domain.FieldDateIsolation, "Date of isolation"),
			field(domain.FieldNgul, "ng/ul"),
			field(domain.FieldBox, "Box"),
			field(domain.FieldLocalityCode, "Locality code"),
		}
		fields = append(fields, localityFields()...)
		fields = append(fields,
			field(domain.FieldGel, "Gel"),
			field(domain.FieldPurification, "Purification"),
			field(domain.FieldStatus, "Status"),
			field(domain.FieldNote, "Note"),
		)
		return Schema{Collection: c, Fields: fields}, true
	case domain.CollectionStorage:
		return Schema{Collection: c, Fields: []Field{
			required(unique(field(domain.FieldBox, "Box"))),
			field(domain.FieldStorageSite, "Storage site"),
		}}, true
	case domain.CollectionLocations:
		fields := []Field{required(unique(field(domain.FieldLocalityCode, "Locality code")))}
		return Schema{Collection: c, Fields: append(fields, localityFields()...)}, true
	case domain.CollectionPrimers:
		return Schema{Collection: c, Fields: []Field{
			required(unique(field("name", "Name"))),
			field("marker", "Marker"),
			required(field("sequence", "Sequence")),
			field("direction", "Direction"),
			field("meltingTemp", "Tm °C"),
			field("reference", "Reference"),
			field(domain.FieldNote, "Note"),
		}}, true
	case domain.CollectionPcrPrograms:
		return Schema{Collection: c, Fields: []Field{
			required(unique(field("name", "Name"))),
			field("initialDenaturationTemp", "Initial denaturation °C"),
			field("initialDenaturationTime", "Initial denaturation time"),
			field("denaturationTemp", "Denaturation °C"),
			field("denaturationTime", "Denaturation time"),
			field("annealingTemp", "Annealing °C"),
			field("annealingTime", "Annealing time"),
			field("extensionTemp", "Extension °C"),
			field("extensionTime", "Extension time"),
			field("cycles", "Cycles"),
			field("finalExtensionTemp", "Final extension °C"),
			field("finalExtensionTime", "Final extension time"),
			field("hold", "Hold"),
		}}, true
	}
	return Schema{}, false
}
