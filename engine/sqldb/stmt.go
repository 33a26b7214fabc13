package sqldb

import (
	"context"
	"database/sql"
	"time"

	"go.miragespace.co/sqlrepo/engine/sqlite3"
	"go.miragespace.co/sqlrepo/spec/store"
)

type Stmt struct {
	conn      *Conn
	stmt      *sql.Stmt
	finalized bool
}

var _ store.Stmt = (*Stmt)(nil)

func args(params []store.Value) ([]any, error) {
	out := make([]any, len(params))
	for i, p := range params {
		v, err := store.Normalize(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Stmt) Exec(ctx context.Context, params []store.Value) (store.Result, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.finalized {
		return store.Result{}, store.ErrDoubleFinalize
	}
	a, err := args(params)
	if err != nil {
		return store.Result{}, err
	}
	res, err := s.stmt.ExecContext(ctx, a...)
	if err != nil {
		return store.Result{}, sqlite3.Translate(ctx, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return store.Result{}, sqlite3.Translate(ctx, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return store.Result{}, sqlite3.Translate(ctx, err)
	}
	return store.Result{
		RowsAffected: affected,
		LastInsertID: id,
	}, nil
}

func (s *Stmt) Query(ctx context.Context, params []store.Value) ([]store.Record, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.finalized {
		return nil, store.ErrDoubleFinalize
	}
	a, err := args(params)
	if err != nil {
		return nil, err
	}
	rows, err := s.stmt.QueryContext(ctx, a...)
	if err != nil {
		return nil, sqlite3.Translate(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, sqlite3.Translate(ctx, err)
	}

	var out []store.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, sqlite3.Translate(ctx, err)
		}
		row := make(store.Record, len(cols))
		for i, col := range cols {
			row[i] = store.Field{Column: col, Value: fromDriver(vals[i])}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, sqlite3.Translate(ctx, err)
	}
	return out, nil
}

// fromDriver folds driver values back into canonical store values.
func fromDriver(v any) store.Value {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case []byte:
		// Scan into *any yields a copy, but be explicit about ownership
		return append([]byte(nil), t...)
	default:
		n, err := store.Normalize(t)
		if err != nil {
			return v
		}
		return n
	}
}

func (s *Stmt) Finalize() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.finalized {
		return store.ErrDoubleFinalize
	}
	s.finalized = true
	return sqlite3.Translate(nil, s.stmt.Close())
}
