// Package formatter renders batches of monitoring records for display.
//
// Table and CSV label their columns with the selected fields of the query,
// in the field format of the query. RawDict passes batches through as is.
// All of them implement query.Formatter and can be used with
// query.FetchBatch and query.FetchLive.
package formatter

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ridge/smcmon/query"
	"github.com/ridge/smcmon/wire"
)

// InvalidFieldFormat is returned for queries whose format has no field
// format, such as combined formats. Such queries must be fetched raw.
type InvalidFieldFormat struct {
	FormatType string
}

func (e *InvalidFieldFormat) Error() string {
	return fmt.Sprintf("%s format has no field format and cannot be used with formatters, fetch raw records instead", e.FormatType)
}

// ErrUnresolved is returned when none of the selected fields is known to the
// server
var ErrUnresolved = errors.New("unable to resolve field ids, select valid fields on the query format")

// Headers returns the column labels for the query: the fields selected by
// the format, or the default fields of the query, labeled in the field
// format of the query
func Headers(ctx context.Context, q *query.Query, catalog *Catalog) ([]string, error) {
	f := q.Format()
	fieldFormat := f.FieldFormat()
	if fieldFormat == "" {
		return nil, &InvalidFieldFormat{FormatType: f.Type()}
	}
	ids := f.FieldIDs()
	if len(ids) == 0 {
		ids = q.DefaultFieldIDs()
	}

	fields, err := catalog.Resolve(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve field ids: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrUnresolved
	}

	headers := make([]string, 0, len(fields))
	for _, field := range fields {
		headers = append(headers, field.Header(fieldFormat))
	}
	return headers, nil
}

// RawDict passes batches through unchanged
type RawDict struct{}

// Format implements query.Formatter
func (RawDict) Format(records []wire.Record) ([]wire.Record, error) {
	return records, nil
}

// CSV renders batches as comma separated lines. The first batch starts with
// the header line.
type CSV struct {
	headers   []string
	headerSet bool
}

// NewCSV creates a CSV formatter with the given columns
func NewCSV(headers []string) *CSV {
	return &CSV{headers: headers}
}

// Format implements query.Formatter. Commas inside values are replaced with
// spaces and missing values are left empty.
func (f *CSV) Format(records []wire.Record) (string, error) {
	var sb strings.Builder
	if !f.headerSet {
		sb.WriteString(strings.Join(f.headers, ","))
		sb.WriteByte('\n')
		f.headerSet = true
	}
	values := make([]string, len(f.headers))
	for _, record := range records {
		for i, header := range f.headers {
			values[i] = strings.ReplaceAll(record.String(header), ",", " ")
		}
		sb.WriteString(strings.Join(values, ","))
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Table renders batches as aligned columns.
//
// Column widths start at the header widths and grow with the data. The
// header and a divider line are printed with the first batch and again
// whenever a column grows.
type Table struct {
	headers   []string
	widths    []int
	headerSet bool
}

// NewTable creates a table formatter with the given columns
func NewTable(headers []string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{headers: headers, widths: widths}
}

const missing = "-"

func (f *Table) cell(record wire.Record, header string) string {
	if v, ok := record.Lookup(header); ok {
		return v
	}
	return missing
}

// Format implements query.Formatter
func (f *Table) Format(records []wire.Record) (string, error) {
	for _, record := range records {
		for i, header := range f.headers {
			if w := len(f.cell(record, header)); w > f.widths[i] {
				f.widths[i] = w
				f.headerSet = false
			}
		}
	}

	var sb strings.Builder
	if !f.headerSet {
		divider := make([]string, len(f.headers))
		for i, w := range f.widths {
			divider[i] = strings.Repeat("-", w)
		}
		f.row(&sb, f.headers)
		f.row(&sb, divider)
		f.headerSet = true
	}
	cells := make([]string, len(f.headers))
	for _, record := range records {
		for i, header := range f.headers {
			cells[i] = f.cell(record, header)
		}
		f.row(&sb, cells)
	}
	return sb.String(), nil
}

func (f *Table) row(sb *strings.Builder, cells []string) {
	for i, cell := range cells {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(sb, "%-*s", f.widths[i], cell)
	}
	sb.WriteByte('\n')
}
