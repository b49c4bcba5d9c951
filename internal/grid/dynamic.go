package grid

import (
	"context"
	"slices"
	"sort"
	"strings"

	"molluscadb/pkg/domain"
)

// AddField adds a new field to a dynamic view by writing an empty value for
// it into exactly one record. The column appears once the field is observed.
func (g *Grid) AddField(ctx context.Context, name string) (domain.Record, error) {
	name = strings.TrimSpace(name)
	if !g.view.Dynamic {
		return domain.Record{}, ErrNotDynamic
	}
	if name == "" || name == "key" {
		return domain.Record{}, InvalidValueError{Column: name, Value: name, Reason: "invalid field name"}
	}
	if g.claimed(name) {
		return domain.Record{}, InvalidValueError{Column: name, Value: name, Reason: "field already exists"}
	}
	if len(g.rows) == 0 {
		return domain.Record{}, ErrNoRecords
	}
	target := g.rows[0].Key
	rec, _, err := g.writer.Update(ctx, g.view.Collection, target, domain.Document{name: ""})
	if err != nil {
		return domain.Record{}, err
	}
	g.patch(target, domain.Document{name: ""})
	g.deriveColumns()
	for _, r := range g.rows {
		k := cellKey{row: r.Key, column: name}
		if _, ok := g.cells[k]; !ok {
			g.cells[k] = newCell(r.Key, name, r.Document.String(name))
		}
	}
	return rec, nil
}

// claimed reports whether a field is already shown or reserved.
func (g *Grid) claimed(field string) bool {
	if _, ok := g.columns[field]; ok {
		return true
	}
	for _, col := range g.columns {
		if col.field() == field || col.display() == field {
			return true
		}
	}
	return slices.Contains(g.view.Exclude, field)
}

// deriveColumns rebuilds the dynamic columns from the union of observed
// fields that no fixed column claims. Surviving columns keep their place;
// new ones are appended in name order.
func (g *Grid) deriveColumns() {
	fixed := make(map[string]bool)
	for _, col := range g.view.Columns {
		fixed[col.field()] = true
		fixed[col.display()] = true
	}
	observed := make(map[string]bool)
	for _, r := range g.rows {
		for field := range r.Document {
			if field == "key" || fixed[field] || slices.Contains(g.view.Exclude, field) {
				continue
			}
			observed[field] = true
		}
	}
	order := g.order[:0:0]
	for _, id := range g.order {
		col := g.columns[id]
		if col.Dynamic && !observed[id] {
			delete(g.columns, id)
			delete(g.filters, id)
			delete(g.hidden, id)
			if g.sort.Column == id {
				g.sort = SortState{}
			}
			continue
		}
		order = append(order, id)
	}
	var added []string
	for field := range observed {
		if _, ok := g.columns[field]; !ok {
			added = append(added, field)
		}
	}
	sort.Strings(added)
	for _, field := range added {
		col := textColumn(field, field)
		col.Dynamic = true
		g.columns[field] = col
		order = append(order, field)
	}
	g.order = order
}
