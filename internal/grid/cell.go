package grid

// CellState is the edit state of one cell.
type CellState string

const (
	CellClean          CellState = "clean"
	CellDirty          CellState = "dirty"
	CellPendingConfirm CellState = "pending-confirm"
	CellCommitted      CellState = "committed"
	CellCancelled      CellState = "cancelled"
)

type cellKey struct {
	row    string
	column string
}

// Cell tracks the local editor value of one cell against the last known
// remote value. Committed and Cancelled are transitional: the cell is Clean
// again once the transition returns.
type Cell struct {
	RowKey   string    `json:"rowKey"`
	ColumnID string    `json:"columnId"`
	Remote   string    `json:"remote"`
	Local    string    `json:"local"`
	State    CellState `json:"state"`
}

func newCell(row, column, remote string) *Cell {
	return &Cell{RowKey: row, ColumnID: column, Remote: remote, Local: remote, State: CellClean}
}

// input records a typed value. It moves between Clean and Dirty.
func (c *Cell) input(value string) {
	c.Local = value
	if sameValue(c.Local, c.Remote) {
		c.State = CellClean
		return
	}
	c.State = CellDirty
}

// blur moves a Dirty cell to PendingConfirm and reports whether it did.
func (c *Cell) blur() bool {
	if c.State != CellDirty {
		return false
	}
	c.State = CellPendingConfirm
	return true
}

// commit accepts the local value as the new remote value.
func (c *Cell) commit() CellState {
	c.Remote = c.Local
	c.State = CellClean
	return CellCommitted
}

// cancel restores the remote value.
func (c *Cell) cancel() CellState {
	c.Local = c.Remote
	c.State = CellClean
	return CellCancelled
}

// refresh applies a new remote value from a snapshot. Clean cells follow
// it; edited cells keep their local value.
func (c *Cell) refresh(remote string) {
	c.Remote = remote
	switch c.State {
	case CellClean:
		c.Local = remote
	case CellDirty:
		if sameValue(c.Local, c.Remote) {
			c.State = CellClean
		}
	}
}
