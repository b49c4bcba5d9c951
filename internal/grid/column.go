package grid

import "slices"

// EditorKind selects the inline cell editor of a column.
type EditorKind string

const (
	EditorText            EditorKind = "text"
	EditorDate            EditorKind = "date"
	EditorNumber          EditorKind = "number"
	EditorSelect          EditorKind = "select"
	EditorCreatableSelect EditorKind = "creatable-select"
)

// CommitPolicy decides whether a changed cell prompts before writing.
type CommitPolicy string

const (
	PolicyConfirm   CommitPolicy = "confirm"
	PolicyNoConfirm CommitPolicy = "no-confirm"
)

// Option is one select choice. Value is written to the record, Label shown.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Column describes one grid column.
type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Field string `json:"field"`
	// DisplayField, when set, is rendered, filtered, sorted and exported in
	// place of Field. Writes still target Field.
	DisplayField string       `json:"displayField,omitempty"`
	Editor       EditorKind   `json:"editor"`
	Policy       CommitPolicy `json:"policy"`
	Options      []Option     `json:"options,omitempty"`
	ReadOnly     bool         `json:"readOnly,omitempty"`
	// Cascade marks the locality code column whose edits also copy the
	// locality template fields.
	Cascade bool `json:"cascade,omitempty"`
	Dynamic bool `json:"dynamic,omitempty"`
}

func (c Column) field() string {
	if c.Field != "" {
		return c.Field
	}
	return c.ID
}

// display is the field the column renders, filters, sorts and exports.
func (c Column) display() string {
	if c.DisplayField != "" {
		return c.DisplayField
	}
	return c.field()
}

func (c Column) hasOption(value string) bool {
	return slices.ContainsFunc(c.Options, func(o Option) bool { return o.Value == value })
}

func textColumn(id, label string) Column {
	return Column{ID: id, Label: label, Editor: EditorText, Policy: PolicyConfirm}
}

func dateColumn(id, label string) Column {
	return Column{ID: id, Label: label, Editor: EditorDate, Policy: PolicyConfirm}
}

func numberColumn(id, label string) Column {
	return Column{ID: id, Label: label, Editor: EditorNumber, Policy: PolicyConfirm}
}

func selectColumn(id, label string, creatable bool, values ...string) Column {
	kind := EditorSelect
	if creatable {
		kind = EditorCreatableSelect
	}
	col := Column{ID: id, Label: label, Editor: kind, Policy: PolicyConfirm}
	for _, v := range values {
		col.Options = append(col.Options, Option{Value: v, Label: v})
	}
	return col
}

func readOnly(c Column) Column {
	c.ReadOnly = true
	return c
}

func noConfirm(c Column) Column {
	c.Policy = PolicyNoConfirm
	return c
}
