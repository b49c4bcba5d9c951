package grid

import (
	"strings"

	"molluscadb/pkg/domain"
)

// Row is one rendered row: the display value of every column by column ID.
type Row struct {
	Key      string            `json:"key"`
	Values   map[string]string `json:"values"`
	Selected bool              `json:"selected"`
}

// ColumnState is a column as currently laid out.
type ColumnState struct {
	Column
	Hidden bool `json:"hidden,omitempty"`
}

// State is the full rendered state of a grid.
type State struct {
	View     string                  `json:"view"`
	Title    string                  `json:"title"`
	File     string                  `json:"file,omitempty"`
	Columns  []ColumnState           `json:"columns"`
	Rows     []Row                   `json:"rows"`
	Total    int                     `json:"total"`
	Sort     SortState               `json:"sort"`
	Filters  map[string]ColumnFilter `json:"filters,omitempty"`
	Global   string                  `json:"global,omitempty"`
	Header   HeaderState             `json:"header"`
	Pending  *PendingEdit            `json:"pending,omitempty"`
	LastEdit *LastEdit               `json:"lastEdit,omitempty"`
}

// Rows returns the rendered rows: column filters and the global filter
// applied, then the active sort.
func (g *Grid) Rows() []Row {
	visible := g.VisibleColumns()
	query := strings.ToLower(strings.TrimSpace(g.global))
	out := make([]Row, 0, len(g.rows))
	for _, r := range g.rows {
		row := g.render(r)
		if !g.passes(row) {
			continue
		}
		if query != "" && !matchesGlobal(row, visible, query) {
			continue
		}
		out = append(out, row)
	}
	g.sortRows(out)
	return out
}

// State returns the rendered grid.
func (g *Grid) State() State {
	rows := g.Rows()
	st := State{
		View:    g.view.Name,
		Title:   g.view.Title,
		File:    g.view.File,
		Columns: g.ColumnStates(),
		Rows:    rows,
		Total:   len(g.rows),
		Sort:    g.sort,
		Global:  g.global,
		Header:  headerState(rows),
	}
	if len(g.filters) > 0 {
		st.Filters = make(map[string]ColumnFilter, len(g.filters))
		for id, f := range g.filters {
			st.Filters[id] = f
		}
	}
	if p, ok := g.confirm.Pending(); ok {
		st.Pending = &p
	}
	if l, ok := g.confirm.LastEdit(); ok {
		st.LastEdit = &l
	}
	return st
}

func (g *Grid) render(r domain.Record) Row {
	row := Row{Key: r.Key, Values: make(map[string]string, len(g.order)), Selected: g.checked[r.Key]}
	for _, id := range g.order {
		row.Values[id] = g.displayValue(r, id)
	}
	return row
}

func (g *Grid) passes(row Row) bool {
	for id, f := range g.filters {
		if !f.pass(row.Values[id]) {
			return false
		}
	}
	return true
}

func matchesGlobal(row Row, visible []Column, query string) bool {
	for _, col := range visible {
		if strings.Contains(strings.ToLower(row.Values[col.ID]), query) {
			return true
		}
	}
	return false
}
