package sheet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/xuri/excelize/v2"
)

// Workbook is a Backend on a local .xlsx file. The file is reopened on
// every call so edits made in a spreadsheet program are picked up.
type Workbook struct {
	path string
	mu   sync.Mutex
}

// NewWorkbook opens an existing workbook file.
func NewWorkbook(path string) (*Workbook, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return &Workbook{path: path}, nil
}

// CreateWorkbook writes a new workbook with every known worksheet and its
// header row. It refuses to overwrite an existing file.
func CreateWorkbook(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("create workbook: %s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("create workbook: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()
	for _, ws := range Worksheets {
		if _, err := f.NewSheet(ws); err != nil {
			return fmt.Errorf("create worksheet %s: %w", ws, err)
		}
		header := Columns[ws]
		if err := f.SetSheetRow(ws, "A1", &header); err != nil {
			return fmt.Errorf("write header %s: %w", ws, err)
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default worksheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func (w *Workbook) open(worksheet string) (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, unavailable("open "+w.path, err)
	}
	if !slices.Contains(f.GetSheetList(), worksheet) {
		f.Close()
		return nil, &WorksheetError{Worksheet: worksheet}
	}
	return f, nil
}

// Read implements Backend.
func (w *Workbook) Read(_ context.Context, worksheet string) (Table, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open(worksheet)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()

	rows, err := f.GetRows(worksheet)
	if err != nil {
		return Table{}, unavailable("read "+worksheet, err)
	}
	return tableFromRows(rows), nil
}

// AppendRow implements Backend.
func (w *Workbook) AppendRow(ctx context.Context, worksheet string, row []string) error {
	return w.AppendRows(ctx, worksheet, [][]string{row})
}

// AppendRows implements Backend. The file is saved once, after the last row.
func (w *Workbook) AppendRows(_ context.Context, worksheet string, rows [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.open(worksheet)
	if err != nil {
		return err
	}
	defer f.Close()

	existing, err := f.GetRows(worksheet)
	if err != nil {
		return unavailable("read "+worksheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, len(existing)+i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(worksheet, cell, &row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	if err := f.Save(); err != nil {
		return unavailable("save "+w.path, err)
	}
	return nil
}

// Close implements Backend.
func (w *Workbook) Close() error { return nil }
