package sheet

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Driver names a SQL engine for the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// SQL stores each worksheet as a table of TEXT columns. row_no keeps the
// insertion order that a spreadsheet would show.
type SQL struct {
	db     *sql.DB
	driver Driver
}

// NewSQL opens the database and creates the worksheet tables.
func NewSQL(ctx context.Context, driver Driver, dsn string) (*SQL, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "simulador.db"
		}
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/simulador?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// every :memory: connection is its own database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("ping database", err)
	}
	s := &SQL{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// sqliteDSN adds a busy timeout to a sqlite DSN, keeping any query the
// caller already passed.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

func (s *SQL) migrate(ctx context.Context) error {
	rowNo := "row_no INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == DriverPostgres {
		rowNo = "row_no BIGSERIAL PRIMARY KEY"
	}
	for _, ws := range Worksheets {
		cols := []string{rowNo}
		for _, c := range Columns[ws] {
			cols = append(cols, c+" TEXT NOT NULL DEFAULT ''")
		}
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", ws, strings.Join(cols, ",\n\t"))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", ws, err)
		}
	}
	return nil
}

// Read implements Backend.
func (s *SQL) Read(ctx context.Context, worksheet string) (Table, error) {
	cols, ok := Columns[worksheet]
	if !ok {
		return Table{}, &WorksheetError{Worksheet: worksheet}
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY row_no", strings.Join(cols, ", "), worksheet))
	if err != nil {
		return Table{}, unavailable("read "+worksheet, err)
	}
	defer rows.Close()

	header := append([]string(nil), cols...)
	var records []Record
	for rows.Next() {
		vals := make([]string, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Table{}, err
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = vals[i]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return Table{}, unavailable("read "+worksheet, err)
	}
	return Table{Header: header, Records: records}, nil
}

// AppendRow implements Backend. Extra cells beyond the header are dropped,
// missing ones are stored empty.
func (s *SQL) AppendRow(ctx context.Context, worksheet string, row []string) error {
	return s.AppendRows(ctx, worksheet, [][]string{row})
}

// AppendRows implements Backend inside one transaction.
func (s *SQL) AppendRows(ctx context.Context, worksheet string, rows [][]string) error {
	cols, ok := Columns[worksheet]
	if !ok {
		return &WorksheetError{Worksheet: worksheet}
	}
	if len(rows) == 0 {
		return nil
	}
	marks := make([]string, len(cols))
	for i := range cols {
		marks[i] = s.placeholder(i + 1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", worksheet, strings.Join(cols, ", "), strings.Join(marks, ", "))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("append to "+worksheet, err)
	}
	defer tx.Rollback()
	for _, row := range rows {
		args := make([]any, len(cols))
		for i := range cols {
			if i < len(row) {
				args[i] = row[i]
			} else {
				args[i] = ""
			}
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return unavailable("append to "+worksheet, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable("append to "+worksheet, err)
	}
	return nil
}

func (s *SQL) placeholder(n int) string {
	if s.driver == DriverPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Close implements Backend.
func (s *SQL) Close() error {
	return s.db.Close()
}
