package grid

import (
	"molluscadb/pkg/domain"

	"github.com/google/uuid"
)

// PendingEdit is a change awaiting confirmation. It is the only value that
// routes a confirmation back to its cell.
type PendingEdit struct {
	ID       string          `json:"id"`
	RowKey   string          `json:"rowKey"`
	ColumnID string          `json:"columnId"`
	Field    string          `json:"field"`
	OldValue string          `json:"oldValue"`
	NewValue string          `json:"newValue"`
	Cascade  domain.Document `json:"cascade,omitempty"`
}

// Fields returns the partial update the edit writes.
func (p PendingEdit) Fields() domain.Document {
	fields := domain.Document{p.Field: p.NewValue}
	for k, v := range p.Cascade {
		fields[k] = v
	}
	return fields
}

// LastEdit points at the most recent committed write of the table.
type LastEdit struct {
	RowKey     string          `json:"rowKey"`
	ColumnID   string          `json:"columnId"`
	Field      string          `json:"field"`
	PriorValue string          `json:"priorValue"`
	NewValue   string          `json:"newValue"`
	Prior      domain.Document `json:"prior,omitempty"`
}

// Fields returns the forward write restoring the prior values.
func (l LastEdit) Fields() domain.Document {
	fields := domain.Document{l.Field: l.PriorValue}
	for k, v := range l.Prior {
		fields[k] = v
	}
	return fields
}

// ConfirmationController holds at most one pending edit and the table-level
// last edit.
type ConfirmationController struct {
	pending *PendingEdit
	last    *LastEdit
}

// Begin registers edit as pending. Re-blurring the cell that already awaits
// confirmation refreshes its new value under the same ID; any other cell is
// rejected while an edit is pending.
func (c *ConfirmationController) Begin(edit PendingEdit) (PendingEdit, error) {
	if c.pending != nil {
		if c.pending.RowKey != edit.RowKey || c.pending.ColumnID != edit.ColumnID {
			return PendingEdit{}, ErrConfirmationPending
		}
		edit.ID = c.pending.ID
		edit.OldValue = c.pending.OldValue
	}
	if edit.ID == "" {
		edit.ID = uuid.NewString()
	}
	c.pending = &edit
	return edit, nil
}

// Pending returns the pending edit, if any.
func (c *ConfirmationController) Pending() (PendingEdit, bool) {
	if c.pending == nil {
		return PendingEdit{}, false
	}
	return *c.pending, true
}

// Prompt returns the pending edit only when it belongs to the given cell.
func (c *ConfirmationController) Prompt(rowKey, columnID string) (PendingEdit, bool) {
	if c.pending == nil || c.pending.RowKey != rowKey || c.pending.ColumnID != columnID {
		return PendingEdit{}, false
	}
	return *c.pending, true
}

// Take removes and returns the pending edit when id matches it.
func (c *ConfirmationController) Take(id string) (PendingEdit, error) {
	if c.pending == nil {
		return PendingEdit{}, ErrNoPendingEdit
	}
	if c.pending.ID != id {
		return PendingEdit{}, ErrEditMismatch
	}
	edit := *c.pending
	c.pending = nil
	return edit, nil
}

// Restore puts back an edit whose write failed so it can be retried or cancelled.
func (c *ConfirmationController) Restore(edit PendingEdit) {
	c.pending = &edit
}

// Drop discards the pending edit if it targets rowKey.
func (c *ConfirmationController) Drop(rowKey string) {
	if c.pending != nil && c.pending.RowKey == rowKey {
		c.pending = nil
	}
}

// Record stores the last committed edit, replacing the previous one.
func (c *ConfirmationController) Record(last LastEdit) {
	c.last = &last
}

// LastEdit returns the last committed edit, if any.
func (c *ConfirmationController) LastEdit() (LastEdit, bool) {
	if c.last == nil {
		return LastEdit{}, false
	}
	return *c.last, true
}

// TakeLast removes and returns the last committed edit.
func (c *ConfirmationController) TakeLast() (LastEdit, error) {
	if c.last == nil {
		return LastEdit{}, ErrNothingToRevert
	}
	last := *c.last
	c.last = nil
	return last, nil
}
