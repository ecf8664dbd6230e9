package store

import (
	"context"
	"database/sql"
)

// DBTX is the query surface shared by *sql.DB and *sql.Tx. Stores accept it
// so the same code runs inside or outside RunInTransaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Database is a pool that reports its health.
type Database interface {
	DBTX
	PingContext(ctx context.Context) error
}

var (
	_ Database = (*sql.DB)(nil)
	_ DBTX     = (*sql.Tx)(nil)
)
