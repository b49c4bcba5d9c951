package grid

// HeaderState is the tri-state of the select-all checkbox.
type HeaderState string

const (
	HeaderNone HeaderState = "none"
	HeaderSome HeaderState = "some"
	HeaderAll  HeaderState = "all"
)

// ToggleRow flips the checkbox of one row and returns its new value.
func (g *Grid) ToggleRow(rowKey string) (bool, error) {
	if _, ok := g.index[rowKey]; !ok {
		return false, UnknownRowError{Key: rowKey}
	}
	if g.checked[rowKey] {
		delete(g.checked, rowKey)
		return false, nil
	}
	g.checked[rowKey] = true
	return true, nil
}

// SetSelected sets the checkbox of one row.
func (g *Grid) SetSelected(rowKey string, selected bool) error {
	if _, ok := g.index[rowKey]; !ok {
		return UnknownRowError{Key: rowKey}
	}
	if selected {
		g.checked[rowKey] = true
	} else {
		delete(g.checked, rowKey)
	}
	return nil
}

// ToggleAll checks every rendered row, or unchecks them all when every
// rendered row is already checked.
func (g *Grid) ToggleAll() HeaderState {
	rows := g.Rows()
	all := headerState(rows) == HeaderAll
	for _, r := range rows {
		if all {
			delete(g.checked, r.Key)
		} else {
			g.checked[r.Key] = true
		}
	}
	return g.HeaderState()
}

// HeaderState reports whether none, some or all rendered rows are checked.
func (g *Grid) HeaderState() HeaderState {
	return headerState(g.Rows())
}

// Selected returns the checked row keys in row order.
func (g *Grid) Selected() []string {
	var out []string
	for _, r := range g.rows {
		if g.checked[r.Key] {
			out = append(out, r.Key)
		}
	}
	return out
}

func headerState(rows []Row) HeaderState {
	n := 0
	for _, r := range rows {
		if r.Selected {
			n++
		}
	}
	switch {
	case n == 0:
		return HeaderNone
	case n == len(rows):
		return HeaderAll
	}
	return HeaderSome
}
