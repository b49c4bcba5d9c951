package grid

import "sort"

// SortDirection is the tri-state header sort.
type SortDirection string

const (
	SortNone SortDirection = ""
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortState names the one sorted column, if any.
type SortState struct {
	Column    string        `json:"column,omitempty"`
	Direction SortDirection `json:"direction,omitempty"`
}

// ToggleSort cycles a header through ascending, descending and unsorted.
// Sorting a new column discards the previous one.
func (g *Grid) ToggleSort(columnID string) (SortState, error) {
	if _, ok := g.columns[columnID]; !ok {
		return g.sort, UnknownColumnError{Column: columnID}
	}
	switch {
	case g.sort.Column != columnID:
		g.sort = SortState{Column: columnID, Direction: SortAsc}
	case g.sort.Direction == SortAsc:
		g.sort.Direction = SortDesc
	default:
		g.sort = SortState{}
	}
	return g.sort, nil
}

// Sort returns the current sort state.
func (g *Grid) Sort() SortState { return g.sort }

func (g *Grid) sortRows(rows []Row) {
	if g.sort.Direction == SortNone {
		return
	}
	id := g.sort.Column
	desc := g.sort.Direction == SortDesc
	values := make([]string, len(rows))
	for i, row := range rows {
		values[i] = row.Values[id]
	}
	mode := modeOf(values)
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareValues(mode, rows[i].Values[id], rows[j].Values[id])
		if desc {
			return c > 0
		}
		return c < 0
	})
}
