// Package tables loads the delimited input tables of an annotation run into
// the in-memory records consumed by the core stages.
//
// Loading is lenient per row and strict per file: a malformed cell becomes a
// missing value reported as a RowIssue, while a missing required column fails
// the whole load.
package tables

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent from the header.
var ErrMissingColumn = errors.New("missing required column")

// RowIssue describes a cell that could not be interpreted. The row is kept
// with the value treated as missing unless the issue says otherwise.
type RowIssue struct {
	Table   string
	Line    int
	Column  string
	Value   string
	Dropped bool
	Err     error
}

func (i RowIssue) Error() string {
	action := "treated as missing"
	if i.Dropped {
		action = "row dropped"
	}
	return fmt.Sprintf("%s line %d column %s value %q: %v (%s)", i.Table, i.Line, i.Column, i.Value, i.Err, action)
}

func (i RowIssue) Unwrap() error { return i.Err }

// Table is a header-addressed delimited table.
type Table struct {
	Columns []string
	Rows    [][]string
	// Lines holds the source line of each row.
	Lines []int
	index map[string]int
}

// Read parses a delimited stream whose first record is the header. Rows may
// carry fewer or more fields than the header; absent fields read as empty.
func Read(r io.Reader, comma rune) (Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return Table{}, fmt.Errorf("read header: empty input")
	}
	if err != nil {
		return Table{}, fmt.Errorf("read header: %w", err)
	}
	t := Table{Columns: make([]string, len(header)), index: make(map[string]int, len(header))}
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		t.Columns[i] = name
		if _, dup := t.index[name]; !dup {
			t.index[name] = i
		}
	}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read row: %w", err)
		}
		line, _ := reader.FieldPos(0)
		t.Rows = append(t.Rows, record)
		t.Lines = append(t.Lines, line)
	}
	return t, nil
}

// Has reports whether the header names column.
func (t Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Require fails with ErrMissingColumn when any column is absent.
func (t Table) Require(table string, columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%s: %w: %s", table, ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Cell returns the trimmed value of column in row i, or "" when absent.
func (t Table) Cell(i int, column string) string {
	idx, ok := t.index[column]
	if !ok || idx >= len(t.Rows[i]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[i][idx])
}

// Optional returns the cell as a pointer, nil for missing-value markers.
func (t Table) Optional(i int, column string) *string {
	v := t.Cell(i, column)
	if IsMissing(v) {
		return nil
	}
	return &v
}

// Record returns row i keyed by column name.
func (t Table) Record(i int) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for j, name := range t.Columns {
		if j < len(t.Rows[i]) {
			out[name] = t.Rows[i][j]
		} else {
			out[name] = ""
		}
	}
	return out
}

var missingMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"nan":  {},
	"NaN":  {},
	"None": {},
}

// IsMissing reports whether a trimmed cell is one of the missing-value markers.
func IsMissing(v string) bool {
	_, ok := missingMarkers[v]
	return ok
}

type cellParser struct {
	table  string
	t      Table
	issues []RowIssue
}

func (p *cellParser) issue(i int, column, value string, dropped bool, err error) {
	p.issues = append(p.issues, RowIssue{Table: p.table, Line: p.t.Lines[i], Column: column, Value: value, Dropped: dropped, Err: err})
}

func (p *cellParser) float(i int, column string) *float64 {
	raw := p.t.Cell(i, column)
	if IsMissing(raw) {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
		err = fmt.Errorf("not a finite number")
	}
	if err != nil {
		p.issue(i, column, raw, false, err)
		return nil
	}
	return &v
}

// integer accepts whole numbers written either as integers or as floats with
// a zero fraction, the form spreadsheet exports tend to produce.
func (p *cellParser) integer(i int, column string) *int64 {
	raw := p.t.Cell(i, column)
	if IsMissing(raw) {
		return nil
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return &v
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != float64(int64(f)) {
		if err == nil {
			err = fmt.Errorf("not a whole number")
		}
		p.issue(i, column, raw, false, err)
		return nil
	}
	v := int64(f)
	return &v
}
