// Package sheet treats a spreadsheet document as a tiny database: each
// worksheet is a table whose first row names the columns.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Worksheet names.
const (
	Users     = "usuarios"
	Questions = "preguntas"
	Results   = "resultados"
)

// Columns holds the header row of every known worksheet.
var Columns = map[string][]string{
	Users:     {"usuario", "password", "nombre", "rol"},
	Questions: {"id", "texto", "op_a", "op_b", "op_c", "correcta"},
	Results:   {"id", "usuario", "materia", "modo", "total", "respondidas", "correctas", "puntaje", "duracion_seg", "fecha"},
}

// Worksheets lists the known worksheets in creation order.
var Worksheets = []string{Users, Questions, Results}

var (
	// ErrWorksheetNotFound is returned when the document has no worksheet with the requested name.
	ErrWorksheetNotFound = errors.New("worksheet not found")
	// ErrUnavailable wraps failures to reach the spreadsheet.
	ErrUnavailable = errors.New("spreadsheet unavailable")
)

// WorksheetError names the missing worksheet; it matches ErrWorksheetNotFound.
type WorksheetError struct {
	Worksheet string
}

func (e *WorksheetError) Error() string {
	return fmt.Sprintf("%s: %q", ErrWorksheetNotFound, e.Worksheet)
}

func (e *WorksheetError) Is(target error) bool { return target == ErrWorksheetNotFound }

// MissingColumnError reports a header that lacks a required column.
type MissingColumnError struct {
	Worksheet string
	Column    string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("worksheet %q has no column %q", e.Worksheet, e.Column)
}

// Record is one data row keyed by header name.
type Record map[string]string

// Table is the content of a worksheet.
type Table struct {
	Header  []string
	Records []Record
}

// Require checks that every column is present in the header.
func (t Table) Require(worksheet string, cols ...string) error {
	have := make(map[string]bool, len(t.Header))
	for _, h := range t.Header {
		have[h] = true
	}
	for _, c := range cols {
		if !have[c] {
			return &MissingColumnError{Worksheet: worksheet, Column: c}
		}
	}
	return nil
}

// Backend is a spreadsheet document.
type Backend interface {
	// Read returns the header and all records of a worksheet.
	Read(ctx context.Context, worksheet string) (Table, error)
	// AppendRow adds a row after the last used row of a worksheet.
	AppendRow(ctx context.Context, worksheet string, row []string) error
	// AppendRows adds rows in order in a single write; either all of them
	// land or none do.
	AppendRows(ctx context.Context, worksheet string, rows [][]string) error
	Close() error
}

// tableFromRows turns raw cell rows into a Table. The first row is the
// header; blank rows are dropped and short rows padded.
func tableFromRows(rows [][]string) Table {
	if len(rows) == 0 {
		return Table{}
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	var records []Record
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		rec := make(Record, len(header))
		for i, h := range header {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = row[i]
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return Table{Header: header, Records: records}
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}
