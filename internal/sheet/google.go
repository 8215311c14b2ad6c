package sheet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleConfig addresses a Google Sheets document.
type GoogleConfig struct {
	SpreadsheetID   string // wins over SpreadsheetName when set
	SpreadsheetName string // looked up through Drive, like opening a document by title
	CredentialsJSON []byte // service-account key
	CredentialsFile string
}

// Google is a Backend on the Google Sheets API.
type Google struct {
	sheets *sheets.Service
	drive  *drive.Service
	name   string

	mu sync.Mutex
	id string
}

// NewGoogle creates the API clients. No request is made until the first read.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*Google, error) {
	var opts []option.ClientOption
	switch {
	case len(cfg.CredentialsJSON) > 0:
		opts = append(opts, option.WithCredentialsJSON(cfg.CredentialsJSON))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	default:
		return nil, errors.New("google backend needs a service-account credential")
	}
	return newGoogle(ctx, cfg, opts...)
}

func newGoogle(ctx context.Context, cfg GoogleConfig, opts ...option.ClientOption) (*Google, error) {
	if cfg.SpreadsheetID == "" && cfg.SpreadsheetName == "" {
		return nil, errors.New("google backend needs a spreadsheet id or name")
	}

	sheetsSrv, err := sheets.NewService(ctx, append(opts, option.WithScopes(sheets.SpreadsheetsScope))...)
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	g := &Google{sheets: sheetsSrv, id: cfg.SpreadsheetID, name: cfg.SpreadsheetName}
	if g.id == "" {
		g.drive, err = drive.NewService(ctx, append(opts, option.WithScopes(drive.DriveMetadataReadonlyScope))...)
		if err != nil {
			return nil, fmt.Errorf("create drive client: %w", err)
		}
	}
	return g, nil
}

// spreadsheetID resolves the document name once and caches the id.
func (g *Google) spreadsheetID(ctx context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.id != "" {
		return g.id, nil
	}
	q := fmt.Sprintf("name = '%s' and mimeType = 'application/vnd.google-apps.spreadsheet' and trashed = false",
		strings.ReplaceAll(g.name, "'", `\'`))
	list, err := g.drive.Files.List().Q(q).Fields("files(id, name)").PageSize(1).Context(ctx).Do()
	if err != nil {
		return "", unavailable("find spreadsheet "+g.name, err)
	}
	if len(list.Files) == 0 {
		return "", unavailable("find spreadsheet "+g.name, errors.New("no document with that name is shared with the service account"))
	}
	g.id = list.Files[0].Id
	slog.Info("resolved spreadsheet", "name", g.name, "id", g.id)
	return g.id, nil
}

func (g *Google) ensureWorksheet(ctx context.Context, id, worksheet string) error {
	doc, err := g.sheets.Spreadsheets.Get(id).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return unavailable("read spreadsheet", err)
	}
	for _, s := range doc.Sheets {
		if s.Properties != nil && s.Properties.Title == worksheet {
			return nil
		}
	}
	return &WorksheetError{Worksheet: worksheet}
}

// Read implements Backend.
func (g *Google) Read(ctx context.Context, worksheet string) (Table, error) {
	id, err := g.spreadsheetID(ctx)
	if err != nil {
		return Table{}, err
	}
	if err := g.ensureWorksheet(ctx, id, worksheet); err != nil {
		return Table{}, err
	}
	resp, err := g.sheets.Spreadsheets.Values.Get(id, a1(worksheet)).Context(ctx).Do()
	if err != nil {
		return Table{}, unavailable("read "+worksheet, err)
	}
	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		rows[i] = make([]string, len(row))
		for j, cell := range row {
			rows[i][j] = fmt.Sprint(cell)
		}
	}
	return tableFromRows(rows), nil
}

// AppendRow implements Backend.
func (g *Google) AppendRow(ctx context.Context, worksheet string, row []string) error {
	return g.AppendRows(ctx, worksheet, [][]string{row})
}

// AppendRows implements Backend with a single values.append call.
func (g *Google) AppendRows(ctx context.Context, worksheet string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}
	id, err := g.spreadsheetID(ctx)
	if err != nil {
		return err
	}
	if err := g.ensureWorksheet(ctx, id, worksheet); err != nil {
		return err
	}
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}
	_, err = g.sheets.Spreadsheets.Values.Append(id, a1(worksheet), &sheets.ValueRange{
		Values: values,
	}).ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return unavailable("append to "+worksheet, err)
	}
	return nil
}

// Close implements Backend.
func (g *Google) Close() error { return nil }

// a1 quotes a worksheet title as an A1 range covering the whole sheet.
func a1(worksheet string) string {
	return "'" + strings.ReplaceAll(worksheet, "'", "''") + "'"
}
