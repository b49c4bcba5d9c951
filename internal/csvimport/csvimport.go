// Package csvimport turns an uploaded CSV file into new records. The header
// row names the fields; every data row is created as its own record.
// Malformed rows are logged for operators and skipped.
package csvimport

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"molluscadb/internal/core"
	"molluscadb/pkg/domain"
)

// ErrNoHeader is returned for an empty upload or an empty header row.
var ErrNoHeader = errors.New("csvimport: missing header row")

// Creator writes new records.
type Creator interface {
	Create(ctx context.Context, c core.Collection, doc core.Document) (core.Record, core.Result, error)
}

// RowRecorder counts imported rows.
type RowRecorder interface {
	RecordImportRow(collection string, success bool)
}

type noopRecorder struct{}

func (noopRecorder) RecordImportRow(string, bool) {}

// Report summarizes one import.
type Report struct {
	Collection core.Collection `json:"collection"`
	Imported   int             `json:"imported"`
	Skipped    int             `json:"skipped"`
	Keys       []string        `json:"keys"`
}

// Importer reads uploads into a collection.
type Importer struct {
	creator Creator
	logger  core.Logger
	rows    RowRecorder
}

// Option configures an Importer.
type Option func(*Importer)

// WithRowRecorder sets the import metrics sink.
func WithRowRecorder(r RowRecorder) Option {
	return func(i *Importer) {
		if r != nil {
			i.rows = r
		}
	}
}

// New returns an importer writing through creator.
func New(creator Creator, logger core.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	i := &Importer{creator: creator, logger: logger, rows: noopRecorder{}}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ignored lists columns an upload may carry but never sets.
var ignored = map[string]bool{
	"key":                        true,
	domain.FieldIsolateCodeGroup: true,
}

// Import creates one record per data row of r. Rows the CSV parser rejects
// are skipped; any other read error stops the import and is returned with
// the partial report.
func (i *Importer) Import(ctx context.Context, c core.Collection, r io.Reader) (Report, error) {
	if !c.Valid() {
		return Report{}, fmt.Errorf("unknown collection %q", c)
	}
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Report{}, ErrNoHeader
	}
	if err != nil {
		return Report{}, fmt.Errorf("read header: %w", err)
	}
	fields := make([]string, len(header))
	named := 0
	for idx, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if ignored[name] {
			i.logger.Warn("import column ignored", "collection", c, "column", name)
			name = ""
		}
		fields[idx] = name
		if name != "" {
			named++
		}
	}
	if named == 0 {
		return Report{}, ErrNoHeader
	}

	report := Report{Collection: c, Keys: []string{}}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				i.logger.Error("import aborted", "collection", c, "line", line, "imported", report.Imported, "error", err)
				return report, fmt.Errorf("read line %d: %w", line, err)
			}
			i.skip(&report, c, line, "malformed row", err)
			continue
		}
		if len(row) != len(fields) {
			i.skip(&report, c, line, "column count mismatch", fmt.Errorf("want %d columns, got %d", len(fields), len(row)))
			continue
		}
		doc := core.Document{}
		for idx, value := range row {
			value = strings.TrimSpace(value)
			if fields[idx] == "" || value == "" {
				continue
			}
			doc[fields[idx]] = value
		}
		if len(doc) == 0 {
			continue
		}
		rec, _, err := i.creator.Create(ctx, c, doc)
		if err != nil {
			i.skip(&report, c, line, "create failed", err)
			continue
		}
		report.Imported++
		report.Keys = append(report.Keys, rec.Key)
		i.rows.RecordImportRow(string(c), true)
	}
	i.logger.Info("import finished", "collection", c, "imported", report.Imported, "skipped", report.Skipped)
	return report, nil
}

func (i *Importer) skip(report *Report, c core.Collection, line int, reason string, err error) {
	report.Skipped++
	i.rows.RecordImportRow(string(c), false)
	i.logger.Warn("import row skipped", "collection", c, "line", line, "reason", reason, "error", err)
}
