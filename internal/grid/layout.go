package grid

// Columns returns every column in display order, hidden ones included.
func (g *Grid) Columns() []Column {
	out := make([]Column, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.columns[id])
	}
	return out
}

// VisibleColumns returns the shown columns in display order.
func (g *Grid) VisibleColumns() []Column {
	out := make([]Column, 0, len(g.order))
	for _, id := range g.order {
		if !g.hidden[id] {
			out = append(out, g.columns[id])
		}
	}
	return out
}

// ColumnStates returns the column layout.
func (g *Grid) ColumnStates() []ColumnState {
	out := make([]ColumnState, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, ColumnState{Column: g.columns[id], Hidden: g.hidden[id]})
	}
	return out
}

// SetHidden shows or hides a column.
func (g *Grid) SetHidden(columnID string, hidden bool) error {
	if _, ok := g.columns[columnID]; !ok {
		return UnknownColumnError{Column: columnID}
	}
	if hidden {
		g.hidden[columnID] = true
	} else {
		delete(g.hidden, columnID)
	}
	return nil
}

// MoveColumn moves a column to position index, clamped to the column range.
func (g *Grid) MoveColumn(columnID string, index int) error {
	from := -1
	for i, id := range g.order {
		if id == columnID {
			from = i
			break
		}
	}
	if from < 0 {
		return UnknownColumnError{Column: columnID}
	}
	order := append(g.order[:from:from], g.order[from+1:]...)
	index = max(0, min(index, len(order)))
	g.order = append(order[:index:index], append([]string{columnID}, order[index:]...)...)
	return nil
}
