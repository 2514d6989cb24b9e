// Package pgx implements the canonical store on PostgreSQL via pgx/v5.
package pgx

import (
	"context"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// CanonicalStore implements store.Store on a pgx connection pool. One
// logical partition per namespace; every query is namespace-scoped.
type CanonicalStore struct {
	conn pgxIConn
}

// New creates a CanonicalStore on an existing connection or pool.
func New(conn pgxIConn) *CanonicalStore {
	return &CanonicalStore{conn: conn}
}
