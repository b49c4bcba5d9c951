// Package grid implements the editable data grid behind every table view:
// per-cell editing with an optional confirmation step, column filters, a
// global filter, single-column sort, row selection, CSV export and
// dynamically derived columns.
//
// A Grid is not safe for concurrent use; callers serialize access.
package grid

import (
	"context"
	"slices"
	"strings"

	"molluscadb/pkg/domain"
)

// Writer issues partial updates against the collection store.
type Writer interface {
	Update(ctx context.Context, c domain.Collection, key string, fields domain.Document) (domain.Record, domain.Result, error)
}

// CascadeFunc returns the dependent fields written together with value, or
// false when value has no template.
type CascadeFunc func(value string) (domain.Document, bool)

// EditResult reports the outcome of an edit transition.
type EditResult struct {
	State   CellState     `json:"state"`
	Prompt  *PendingEdit  `json:"prompt,omitempty"`
	Written bool          `json:"written"`
	Record  domain.Record `json:"record,omitempty"`
	Result  domain.Result `json:"result"`
}

// Grid holds the rows and interaction state of one view.
type Grid struct {
	view    View
	writer  Writer
	columns map[string]Column
	order   []string
	hidden  map[string]bool
	rows    []domain.Record
	index   map[string]int
	cells   map[cellKey]*Cell
	confirm ConfirmationController
	filters map[string]ColumnFilter
	global  string
	sort    SortState
	checked map[string]bool
	created map[string][]string
	cascade CascadeFunc
}

// New builds an empty grid for view writing through w.
func New(view View, w Writer) *Grid {
	g := &Grid{
		view:    view,
		writer:  w,
		columns: make(map[string]Column, len(view.Columns)),
		hidden:  make(map[string]bool),
		index:   make(map[string]int),
		cells:   make(map[cellKey]*Cell),
		filters: make(map[string]ColumnFilter),
		checked: make(map[string]bool),
		created: make(map[string][]string),
	}
	for _, col := range view.Columns {
		g.columns[col.ID] = col
		g.order = append(g.order, col.ID)
	}
	return g
}

// View returns the view definition.
func (g *Grid) View() View { return g.view }

// SetCascade installs the template lookup used by cascade columns.
func (g *Grid) SetCascade(fn CascadeFunc) { g.cascade = fn }

// SetOptions replaces the option list of a select column.
func (g *Grid) SetOptions(columnID string, options []Option) error {
	col, ok := g.columns[columnID]
	if !ok {
		return UnknownColumnError{Column: columnID}
	}
	col.Options = append([]Option(nil), options...)
	g.columns[columnID] = col
	return nil
}

// Options returns the column options followed by values created in this grid.
func (g *Grid) Options(columnID string) ([]Option, error) {
	col, ok := g.columns[columnID]
	if !ok {
		return nil, UnknownColumnError{Column: columnID}
	}
	out := append([]Option(nil), col.Options...)
	for _, v := range g.created[columnID] {
		if !col.hasOption(v) {
			out = append(out, Option{Value: v, Label: v})
		}
	}
	return out, nil
}

// SetRows replaces the whole row list. Clean cells follow the new values;
// edited cells keep their local value. Selection and pending edits of
// vanished rows are dropped.
func (g *Grid) SetRows(rows []domain.Record) {
	g.rows = make([]domain.Record, len(rows))
	g.index = make(map[string]int, len(rows))
	for i, r := range rows {
		g.rows[i] = r.Clone()
		g.index[r.Key] = i
	}
	if g.view.Dynamic {
		g.deriveColumns()
	}
	live := make(map[cellKey]bool, len(g.rows)*len(g.columns))
	for _, r := range g.rows {
		for id, col := range g.columns {
			k := cellKey{row: r.Key, column: id}
			live[k] = true
			remote := r.Document.String(col.field())
			if c, ok := g.cells[k]; ok {
				c.refresh(remote)
				continue
			}
			g.cells[k] = newCell(r.Key, id, remote)
		}
	}
	for k := range g.cells {
		if !live[k] {
			delete(g.cells, k)
		}
	}
	for key := range g.checked {
		if _, ok := g.index[key]; !ok {
			delete(g.checked, key)
		}
	}
	if p, ok := g.confirm.Pending(); ok {
		if _, live := g.index[p.RowKey]; !live {
			g.confirm.Drop(p.RowKey)
		}
	}
}

// Len returns the number of rows before filtering.
func (g *Grid) Len() int { return len(g.rows) }

// Cell returns the edit state of one cell.
func (g *Grid) Cell(rowKey, columnID string) (Cell, error) {
	c, _, err := g.lookup(rowKey, columnID)
	if err != nil {
		return Cell{}, err
	}
	return *c, nil
}

func (g *Grid) lookup(rowKey, columnID string) (*Cell, Column, error) {
	col, ok := g.columns[columnID]
	if !ok {
		return nil, Column{}, UnknownColumnError{Column: columnID}
	}
	if _, ok := g.index[rowKey]; !ok {
		return nil, Column{}, UnknownRowError{Key: rowKey}
	}
	return g.cells[cellKey{row: rowKey, column: columnID}], col, nil
}

// SetInput records a typed value without leaving the cell.
func (g *Grid) SetInput(rowKey, columnID, value string) (Cell, error) {
	c, col, err := g.lookup(rowKey, columnID)
	if err != nil {
		return Cell{}, err
	}
	if col.ReadOnly {
		return Cell{}, ErrReadOnly
	}
	if c.State == CellPendingConfirm {
		c.State = CellDirty
	}
	c.input(value)
	return *c, nil
}

// Blur leaves the cell. An unchanged cell does nothing. A changed cell in a
// confirm column becomes a pending edit; in a no-confirm column it is written
// at once.
func (g *Grid) Blur(ctx context.Context, rowKey, columnID string) (EditResult, error) {
	c, col, err := g.lookup(rowKey, columnID)
	if err != nil {
		return EditResult{}, err
	}
	if c.State != CellDirty {
		return EditResult{State: c.State}, nil
	}
	if err := g.validate(col, c.Local); err != nil {
		return EditResult{State: c.State}, err
	}
	edit := PendingEdit{
		RowKey:   rowKey,
		ColumnID: columnID,
		Field:    col.field(),
		OldValue: c.Remote,
		NewValue: c.Local,
	}
	if col.Cascade && g.cascade != nil {
		if fields, ok := g.cascade(c.Local); ok {
			edit.Cascade = fields
		}
	}
	if col.Policy == PolicyNoConfirm {
		return g.commit(ctx, c, col, edit)
	}
	pending, err := g.confirm.Begin(edit)
	if err != nil {
		return EditResult{State: c.State}, err
	}
	c.blur()
	return EditResult{State: c.State, Prompt: &pending}, nil
}

// Select sets the value of a select cell and leaves it in one step.
func (g *Grid) Select(ctx context.Context, rowKey, columnID, value string) (EditResult, error) {
	if _, err := g.SetInput(rowKey, columnID, value); err != nil {
		return EditResult{}, err
	}
	return g.Blur(ctx, rowKey, columnID)
}

// Prompt returns the pending edit of one cell. Other cells never see it.
func (g *Grid) Prompt(rowKey, columnID string) (PendingEdit, bool) {
	return g.confirm.Prompt(rowKey, columnID)
}

// Pending returns the edit awaiting confirmation, if any.
func (g *Grid) Pending() (PendingEdit, bool) { return g.confirm.Pending() }

// LastEdit returns the edit a revert would undo.
func (g *Grid) LastEdit() (LastEdit, bool) { return g.confirm.LastEdit() }

// Confirm writes the pending edit named by id as one partial update. A failed
// write leaves the edit pending.
func (g *Grid) Confirm(ctx context.Context, id string) (EditResult, error) {
	edit, err := g.confirm.Take(id)
	if err != nil {
		return EditResult{}, err
	}
	c, col, err := g.lookup(edit.RowKey, edit.ColumnID)
	if err != nil {
		return EditResult{}, err
	}
	res, err := g.commit(ctx, c, col, edit)
	if err != nil {
		g.confirm.Restore(edit)
		c.State = CellPendingConfirm
	}
	return res, err
}

// Cancel drops the pending edit named by id and restores the cell.
func (g *Grid) Cancel(id string) (EditResult, error) {
	edit, err := g.confirm.Take(id)
	if err != nil {
		return EditResult{}, err
	}
	c, _, err := g.lookup(edit.RowKey, edit.ColumnID)
	if err != nil {
		return EditResult{State: CellCancelled}, nil
	}
	return EditResult{State: c.cancel()}, nil
}

// Revert writes the prior values of the last committed edit back as a new
// forward write. Only one level is kept.
func (g *Grid) Revert(ctx context.Context) (EditResult, error) {
	last, err := g.confirm.TakeLast()
	if err != nil {
		return EditResult{}, err
	}
	if _, ok := g.index[last.RowKey]; !ok {
		return EditResult{}, UnknownRowError{Key: last.RowKey}
	}
	fields := last.Fields()
	rec, result, err := g.writer.Update(ctx, g.view.Collection, last.RowKey, fields)
	if err != nil {
		g.confirm.Record(last)
		return EditResult{Result: result}, err
	}
	g.patch(last.RowKey, fields)
	return EditResult{State: CellCommitted, Written: true, Record: rec, Result: result}, nil
}

func (g *Grid) commit(ctx context.Context, c *Cell, col Column, edit PendingEdit) (EditResult, error) {
	row := g.rows[g.index[edit.RowKey]]
	prior := domain.Document{}
	for field := range edit.Cascade {
		prior[field] = row.Document.String(field)
	}
	fields := edit.Fields()
	rec, result, err := g.writer.Update(ctx, g.view.Collection, edit.RowKey, fields)
	if err != nil {
		return EditResult{State: c.State, Result: result}, err
	}
	state := c.commit()
	if col.Editor == EditorCreatableSelect && edit.NewValue != "" && !col.hasOption(edit.NewValue) &&
		!slices.Contains(g.created[col.ID], edit.NewValue) {
		g.created[col.ID] = append(g.created[col.ID], edit.NewValue)
	}
	last := LastEdit{
		RowKey:     edit.RowKey,
		ColumnID:   edit.ColumnID,
		Field:      edit.Field,
		PriorValue: edit.OldValue,
		NewValue:   edit.NewValue,
	}
	if len(prior) > 0 {
		last.Prior = prior
	}
	g.confirm.Record(last)
	g.patch(edit.RowKey, fields)
	return EditResult{State: state, Written: true, Record: rec, Result: result}, nil
}

// patch applies written fields to the local row so the grid reflects the
// write before the next snapshot arrives.
func (g *Grid) patch(rowKey string, fields domain.Document) {
	i, ok := g.index[rowKey]
	if !ok {
		return
	}
	row := g.rows[i]
	if row.Document == nil {
		row.Document = domain.Document{}
	}
	for field, value := range fields {
		row.Document[field] = value
	}
	for id, col := range g.columns {
		value, written := fields[col.field()]
		if !written {
			continue
		}
		if col.DisplayField != "" {
			row.Document[col.DisplayField] = g.label(col, domain.Stringify(value))
		}
		if c, ok := g.cells[cellKey{row: rowKey, column: id}]; ok {
			c.refresh(domain.Stringify(value))
		}
	}
	g.rows[i] = row
}

func (g *Grid) label(col Column, value string) string {
	for _, o := range col.Options {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}

func (g *Grid) validate(col Column, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	switch col.Editor {
	case EditorNumber:
		if _, ok := parseNumber(value); !ok {
			return InvalidValueError{Column: col.ID, Value: value, Reason: "not a number"}
		}
	case EditorDate:
		if _, ok := parseDate(value); !ok {
			return InvalidValueError{Column: col.ID, Value: value, Reason: "not a date"}
		}
	case EditorSelect:
		if !col.hasOption(value) {
			return InvalidValueError{Column: col.ID, Value: value, Reason: "not one of the options"}
		}
	}
	return nil
}

// displayValue returns what the cell renders: the local editor value, or the
// display field of a clean cell whose column shows a different field.
func (g *Grid) displayValue(row domain.Record, id string) string {
	col := g.columns[id]
	c := g.cells[cellKey{row: row.Key, column: id}]
	switch {
	case c == nil || (col.DisplayField != "" && c.State == CellClean):
		return row.Document.String(col.display())
	case col.DisplayField == "":
		return c.Local
	}
	return g.label(col, c.Local)
}
