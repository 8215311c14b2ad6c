package sheet

import (
	"context"
	"fmt"
)

// Kind selects a Backend implementation.
type Kind string

const (
	KindGoogle   Kind = "google"
	KindXLSX     Kind = "xlsx"
	KindSQLite   Kind = "sqlite"
	KindPostgres Kind = "postgres"
)

// Config selects and configures a Backend.
type Config struct {
	Kind   Kind
	Google GoogleConfig
	Path   string // workbook path for xlsx
	DSN    string // database for sqlite/postgres
}

// Open returns the configured Backend.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Kind {
	case KindGoogle:
		return NewGoogle(ctx, cfg.Google)
	case KindXLSX:
		return NewWorkbook(cfg.Path)
	case KindSQLite:
		return NewSQL(ctx, DriverSQLite, cfg.DSN)
	case KindPostgres:
		return NewSQL(ctx, DriverPostgres, cfg.DSN)
	}
	return nil, fmt.Errorf("unknown backend %q (google, xlsx, sqlite, postgres)", cfg.Kind)
}
