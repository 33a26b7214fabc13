package store

import (
	"context"
)

// Conn is the narrow boundary to an embedded SQL engine. A Conn is a single
// physical connection: implementations serialize calls internally, and at most
// one transaction may be open at a time.
type Conn interface {
	// Prepare compiles sql. Malformed SQL fails with ErrSyntax.
	Prepare(ctx context.Context, sql string) (Stmt, error)
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close() error
}

// Stmt is a compiled program owned by one Conn. It must be finalized exactly
// once; a second Finalize returns ErrDoubleFinalize.
type Stmt interface {
	Exec(ctx context.Context, params []Value) (Result, error)
	Query(ctx context.Context, params []Value) ([]Record, error)
	Finalize() error
}
