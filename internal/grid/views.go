package grid

import "molluscadb/pkg/domain"

// View defines one table: its collection, columns and export file.
type View struct {
	Name       string            `json:"name"`
	Title      string            `json:"title"`
	File       string            `json:"file,omitempty"`
	Collection domain.Collection `json:"collection"`
	Columns    []Column          `json:"columns"`
	// NewestFirst reverses store order.
	NewestFirst bool `json:"newestFirst,omitempty"`
	// Joined rows carry boxName and storageSite from the lookup join.
	Joined bool `json:"joined,omitempty"`
	// Dynamic views derive columns from observed fields and accept new ones.
	Dynamic bool `json:"dynamic,omitempty"`
	// Exclude lists fields never turned into dynamic columns.
	Exclude []string `json:"exclude,omitempty"`
}

// View names.
const (
	ViewAll         = "all"
	ViewLoci        = "pcr-genomic-loci"
	ViewPcrPrograms = "pcr-programs"
	ViewExtractions = "extractions"
	ViewStorage     = "storage"
	ViewLocations   = "locations"
	ViewPrimers     = "primers"
)

// Column IDs shared between views and callers.
const (
	ColumnBox          = domain.FieldBox
	ColumnLocalityCode = domain.FieldLocalityCode
)

var (
	locusStatuses = []string{"PCR ok", "PCR failed", "sequenced", "sequencing failed", "submitted"}
	yesNo         = []string{"yes", "no"}
	statuses      = []string{"extracted", "in progress", "done", "discarded"}
)

func boxColumn() Column {
	col := selectColumn(ColumnBox, "Box", false)
	col.DisplayField = domain.FieldBoxName
	return col
}

func localityCodeColumn() Column {
	col := selectColumn(ColumnLocalityCode, "Locality code", false)
	col.Cascade = true
	return col
}

func locusColumns() []Column {
	out := make([]Column, 0, len(domain.Loci))
	for _, locus := range domain.Loci {
		out = append(out, selectColumn(locus, locus, true, locusStatuses...))
	}
	return out
}

func localityColumns() []Column {
	return []Column{
		textColumn(domain.FieldCountry, "Country"),
		textColumn(domain.FieldState, "State"),
		textColumn(domain.FieldLocalityName, "Locality"),
		numberColumn(domain.FieldLatitude, "Latitude"),
		numberColumn(domain.FieldLongitude, "Longitude"),
		numberColumn(domain.FieldAltitude, "Altitude"),
		textColumn(domain.FieldHabitat, "Habitat"),
		dateColumn(domain.FieldDateCollection, "Date of collection"),
		textColumn(domain.FieldCollector, "Collector"),
	}
}

// extractionFields lists every fixed extraction field, used to keep them out
// of the dynamic loci columns.
func extractionFields() []string {
	fields := []string{
		domain.FieldIsolateCode, domain.FieldSpeciesOrig, domain.FieldSpeciesUpdated,
		domain.FieldProject, domain.FieldDateIsolation, domain.FieldNgul, domain.FieldBox,
		domain.FieldLocalityCode, domain.FieldGel, domain.FieldPurification, domain.FieldStatus,
		domain.FieldNote, domain.FieldIsolateCodeGroup, domain.FieldBoxName, domain.FieldStorageSite,
	}
	return append(fields, domain.LocalityFields...)
}

func allView() View {
	cols := []Column{
		textColumn(domain.FieldIsolateCode, "Isolate code"),
		textColumn(domain.FieldSpeciesOrig, "Species (original)"),
		textColumn(domain.FieldSpeciesUpdated, "Species (updated)"),
		textColumn(domain.FieldProject, "Project"),
		dateColumn(domain.FieldDateIsolation, "Date of isolation"),
		numberColumn(domain.FieldNgul, "ng/ul"),
		boxColumn(),
		readOnly(textColumn(domain.FieldStorageSite, "Storage site")),
		localityCodeColumn(),
	}
	cols = append(cols, localityColumns()...)
	cols = append(cols, locusColumns()...)
	cols = append(cols,
		selectColumn(domain.FieldGel, "Gel", true, yesNo...),
		selectColumn(domain.FieldPurification, "Purification", true, yesNo...),
		selectColumn(domain.FieldStatus, "Status", true, statuses...),
		textColumn(domain.FieldNote, "Note"),
		readOnly(textColumn(domain.FieldIsolateCodeGroup, "Isolate code group")),
	)
	return View{
		Name:       ViewAll,
		Title:      "All",
		File:       "db-mollusca-all.csv",
		Collection: domain.CollectionExtractions,
		Columns:    cols,
		Joined:     true,
	}
}

func lociView() View {
	cols := []Column{
		readOnly(textColumn(domain.FieldIsolateCode, "Isolate code")),
		readOnly(textColumn(domain.FieldSpeciesUpdated, "Species")),
	}
	cols = append(cols, locusColumns()...)
	return View{
		Name:       ViewLoci,
		Title:      "PCR genomic loci",
		File:       "PCR-genomic-loci.csv",
		Collection: domain.CollectionExtractions,
		Columns:    cols,
		Dynamic:    true,
		Exclude:    extractionFields(),
	}
}

func pcrProgramsView() View {
	step := func(id, label string) Column { return noConfirm(textColumn(id, label)) }
	return View{
		Name:       ViewPcrPrograms,
		Title:      "PCR programs",
		File:       "pcr-programs.csv",
		Collection: domain.CollectionPcrPrograms,
		Columns: []Column{
			textColumn("name", "Name"),
			step("initialDenaturationTemp", "Initial denaturation °C"),
			step("initialDenaturationTime", "Initial denaturation time"),
			step("denaturationTemp", "Denaturation °C"),
			step("denaturationTime", "Denaturation time"),
			step("annealingTemp", "Annealing °C"),
			step("annealingTime", "Annealing time"),
			step("extensionTemp", "Extension °C"),
			step("extensionTime", "Extension time"),
			step("cycles", "Cycles"),
			step("finalExtensionTemp", "Final extension °C"),
			step("finalExtensionTime", "Final extension time"),
			step("hold", "Hold"),
		},
	}
}

func extractionsView() View {
	return View{
		Name:       ViewExtractions,
		Title:      "DNA extractions",
		File:       "extractions.csv",
		Collection: domain.CollectionExtractions,
		Columns: []Column{
			textColumn(domain.FieldIsolateCode, "Isolate code"),
			textColumn(domain.FieldSpeciesOrig, "Species (original)"),
			textColumn(domain.FieldSpeciesUpdated, "Species (updated)"),
			textColumn(domain.FieldProject, "Project"),
			dateColumn(domain.FieldDateIsolation, "Date of isolation"),
			numberColumn(domain.FieldNgul, "ng/ul"),
			boxColumn(),
			localityCodeColumn(),
			textColumn(domain.FieldNote, "Note"),
		},
		NewestFirst: true,
		Joined:      true,
	}
}

func storageView() View {
	return View{
		Name:       ViewStorage,
		Title:      "Storage",
		File:       "storage.csv",
		Collection: domain.CollectionStorage,
		Columns: []Column{
			textColumn(domain.FieldBox, "Box"),
			textColumn(domain.FieldStorageSite, "Storage site"),
		},
	}
}

func locationsView() View {
	cols := []Column{textColumn(domain.FieldLocalityCode, "Locality code")}
	return View{
		Name:       ViewLocations,
		Title:      "Locations",
		File:       "locations.csv",
		Collection: domain.CollectionLocations,
		Columns:    append(cols, localityColumns()...),
	}
}

func primersView() View {
	return View{
		Name:       ViewPrimers,
		Title:      "Primers",
		File:       "primers.csv",
		Collection: domain.CollectionPrimers,
		Columns: []Column{
			textColumn("name", "Name"),
			textColumn("marker", "Marker"),
			textColumn("sequence", "Sequence"),
			selectColumn("direction", "Direction", true, "forward", "reverse"),
			numberColumn("meltingTemp", "Tm °C"),
			textColumn("reference", "Reference"),
			textColumn(domain.FieldNote, "Note"),
		},
		Dynamic: true,
	}
}

// Views returns every view definition. Each call returns fresh values.
func Views() []View {
	return []View{
		allView(),
		lociView(),
		pcrProgramsView(),
		extractionsView(),
		storageView(),
		locationsView(),
		primersView(),
	}
}

// LookupView returns the view with the given name.
func LookupView(name string) (View, bool) {
	for _, v := range Views() {
		if v.Name == name {
			return v, true
		}
	}
	return View{}, false
}
