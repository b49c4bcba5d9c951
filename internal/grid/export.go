package grid

import (
	"encoding/csv"
	"fmt"
	"io"
)

// Export writes the checked rows that are currently rendered as CSV: a header
// of visible column labels, then one line per row in rendered order. It
// returns the number of data lines written.
func (g *Grid) Export(w io.Writer) (int, error) {
	visible := g.VisibleColumns()
	cw := csv.NewWriter(w)
	header := make([]string, len(visible))
	for i, col := range visible {
		header[i] = col.Label
	}
	if err := cw.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	n := 0
	for _, row := range g.Rows() {
		if !row.Selected {
			continue
		}
		line := make([]string, len(visible))
		for i, col := range visible {
			line[i] = row.Values[col.ID]
		}
		if err := cw.Write(line); err != nil {
			return n, fmt.Errorf("write row %s: %w", row.Key, err)
		}
		n++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}

// FileName returns the download name of the export.
func (g *Grid) FileName() string {
	if g.view.File != "" {
		return g.view.File
	}
	return g.view.Name + ".csv"
}
