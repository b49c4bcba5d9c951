package grid

import (
	"slices"
	"sort"
	"strings"
)

// ColumnFilter is the filter state of one column. All set parts must pass.
type ColumnFilter struct {
	// Values is the multi-select set. Empty means every row passes.
	Values []string `json:"values,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Years  []int    `json:"years,omitempty"`
	Months []int    `json:"months,omitempty"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
}

func (f ColumnFilter) empty() bool {
	return len(f.Values) == 0 && f.Min == nil && f.Max == nil &&
		len(f.Years) == 0 && len(f.Months) == 0 && f.From == "" && f.To == ""
}

func (f ColumnFilter) numeric() bool { return f.Min != nil || f.Max != nil }

func (f ColumnFilter) dated() bool {
	return len(f.Years) > 0 || len(f.Months) > 0 || f.From != "" || f.To != ""
}

func (f ColumnFilter) pass(value string) bool {
	if len(f.Values) > 0 && !slices.Contains(f.Values, value) {
		return false
	}
	if f.numeric() {
		n, ok := parseNumber(value)
		if !ok {
			return false
		}
		if f.Min != nil && n < *f.Min {
			return false
		}
		if f.Max != nil && n > *f.Max {
			return false
		}
	}
	if f.dated() {
		d, ok := parseDate(value)
		if !ok {
			return false
		}
		if len(f.Years) > 0 && !slices.Contains(f.Years, d.Year()) {
			return false
		}
		if len(f.Months) > 0 && !slices.Contains(f.Months, int(d.Month())) {
			return false
		}
		if from, ok := parseDate(f.From); ok && d.Before(from) {
			return false
		}
		if to, ok := parseDate(f.To); ok && d.After(to) {
			return false
		}
	}
	return true
}

// Facets describes the filterable shape of a column's current values.
type Facets struct {
	Column  string   `json:"column"`
	Values  []string `json:"values"`
	Numeric bool     `json:"numeric"`
	Date    bool     `json:"date"`
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Years   []int    `json:"years,omitempty"`
	Months  []int    `json:"months,omitempty"`
}

func computeFacets(column string, values []string) Facets {
	f := Facets{Column: column}
	seen := make(map[string]bool)
	nonBlank := 0
	numeric, dated := true, true
	years := make(map[int]bool)
	months := make(map[int]bool)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			f.Values = append(f.Values, v)
		}
		if strings.TrimSpace(v) == "" {
			continue
		}
		nonBlank++
		if n, ok := parseNumber(v); ok {
			if f.Min == nil || n < *f.Min {
				f.Min = &n
			}
			if f.Max == nil || n > *f.Max {
				f.Max = &n
			}
		} else {
			numeric = false
		}
		if d, ok := parseDate(v); ok {
			years[d.Year()] = true
			months[int(d.Month())] = true
		} else {
			dated = false
		}
	}
	f.Numeric = nonBlank > 0 && numeric
	f.Date = nonBlank > 0 && dated && !f.Numeric
	mode := compareText
	switch {
	case f.Numeric:
		mode = compareNumber
	case f.Date:
		mode = compareDate
	}
	sort.SliceStable(f.Values, func(i, j int) bool { return compareValues(mode, f.Values[i], f.Values[j]) < 0 })
	if !f.Numeric {
		f.Min, f.Max = nil, nil
	}
	if f.Date {
		f.Years = sortedInts(years)
		f.Months = sortedInts(months)
	}
	return f
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// searchOptions returns the values containing query, case-insensitively.
func searchOptions(values []string, query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return append([]string(nil), values...)
	}
	var out []string
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), q) {
			out = append(out, v)
		}
	}
	return out
}

func validDate(s string) bool {
	if s == "" {
		return true
	}
	_, ok := parseDate(s)
	return ok
}

// SetFilter replaces the filter of one column. Range filters are only
// accepted on columns whose values are all numbers, date filters only on
// columns whose values are all dates.
func (g *Grid) SetFilter(columnID string, f ColumnFilter) error {
	if _, ok := g.columns[columnID]; !ok {
		return UnknownColumnError{Column: columnID}
	}
	if f.empty() {
		delete(g.filters, columnID)
		return nil
	}
	facets := g.facets(columnID)
	if f.numeric() && !facets.Numeric {
		return FilterNotApplicableError{Column: columnID, Kind: "range"}
	}
	if f.dated() && !facets.Date {
		return FilterNotApplicableError{Column: columnID, Kind: "date"}
	}
	if !validDate(f.From) {
		return InvalidValueError{Column: columnID, Value: f.From, Reason: "not a date"}
	}
	if !validDate(f.To) {
		return InvalidValueError{Column: columnID, Value: f.To, Reason: "not a date"}
	}
	f.Values = append([]string(nil), f.Values...)
	g.filters[columnID] = f
	return nil
}

// Filter returns the filter of one column.
func (g *Grid) Filter(columnID string) ColumnFilter { return g.filters[columnID] }

// ClearFilters drops every column filter and the global filter.
func (g *Grid) ClearFilters() {
	g.filters = make(map[string]ColumnFilter)
	g.global = ""
}

// SelectAll checks every distinct value of the column's multi-select filter.
func (g *Grid) SelectAll(columnID string) error {
	if _, ok := g.columns[columnID]; !ok {
		return UnknownColumnError{Column: columnID}
	}
	f := g.filters[columnID]
	f.Values = g.facets(columnID).Values
	if f.empty() {
		delete(g.filters, columnID)
		return nil
	}
	g.filters[columnID] = f
	return nil
}

// UnselectAll clears the column's multi-select values. An empty value set
// lets every row through.
func (g *Grid) UnselectAll(columnID string) error {
	if _, ok := g.columns[columnID]; !ok {
		return UnknownColumnError{Column: columnID}
	}
	f := g.filters[columnID]
	f.Values = nil
	if f.empty() {
		delete(g.filters, columnID)
		return nil
	}
	g.filters[columnID] = f
	return nil
}

// SetGlobalFilter sets the case-insensitive substring filter over visible cells.
func (g *Grid) SetGlobalFilter(query string) { g.global = query }

// GlobalFilter returns the global filter text.
func (g *Grid) GlobalFilter() string { return g.global }

// Facets describes the distinct values of a column over all rows.
func (g *Grid) Facets(columnID string) (Facets, error) {
	if _, ok := g.columns[columnID]; !ok {
		return Facets{}, UnknownColumnError{Column: columnID}
	}
	return g.facets(columnID), nil
}

// SearchOptions searches the column's filter options.
func (g *Grid) SearchOptions(columnID, query string) ([]string, error) {
	facets, err := g.Facets(columnID)
	if err != nil {
		return nil, err
	}
	return searchOptions(facets.Values, query), nil
}

func (g *Grid) facets(columnID string) Facets {
	values := make([]string, 0, len(g.rows))
	for _, r := range g.rows {
		values = append(values, g.displayValue(r, columnID))
	}
	return computeFacets(columnID, values)
}
