package grid

import (
	"errors"
	"fmt"
)

var (
	// ErrNoPendingEdit is returned when confirming or cancelling with nothing pending.
	ErrNoPendingEdit = errors.New("grid: no pending edit")
	// ErrEditMismatch is returned when a confirmation names a different edit than the pending one.
	ErrEditMismatch = errors.New("grid: edit does not match pending edit")
	// ErrConfirmationPending is returned when another cell already awaits confirmation.
	ErrConfirmationPending = errors.New("grid: another edit awaits confirmation")
	// ErrNothingToRevert is returned when no committed edit can be reverted.
	ErrNothingToRevert = errors.New("grid: nothing to revert")
	// ErrReadOnly is returned when editing a read-only column.
	ErrReadOnly = errors.New("grid: column is read-only")
	// ErrNotDynamic is returned when adding a field to a view without dynamic columns.
	ErrNotDynamic = errors.New("grid: view does not accept new fields")
	// ErrNoRecords is returned when a new field cannot be written because the view is empty.
	ErrNoRecords = errors.New("grid: no record to hold the new field")
)

// UnknownColumnError names a column that is not part of the grid.
type UnknownColumnError struct {
	Column string
}

func (e UnknownColumnError) Error() string {
	return fmt.Sprintf("grid: unknown column %q", e.Column)
}

// UnknownRowError names a row key that is not part of the grid.
type UnknownRowError struct {
	Key string
}

func (e UnknownRowError) Error() string {
	return fmt.Sprintf("grid: unknown row %q", e.Key)
}

// InvalidValueError reports a value the column editor cannot accept.
type InvalidValueError struct {
	Column string
	Value  string
	Reason string
}

func (e InvalidValueError) Error() string {
	return fmt.Sprintf("grid: invalid value %q for %s: %s", e.Value, e.Column, e.Reason)
}

// FilterNotApplicableError reports a range filter on a column whose values do
// not support it.
type FilterNotApplicableError struct {
	Column string
	Kind   string
}

func (e FilterNotApplicableError) Error() string {
	return fmt.Sprintf("grid: %s filter not applicable to column %q", e.Kind, e.Column)
}
