package sqlite3

import (
	"context"
	"fmt"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/ncruces/go-sqlite3"
)

type Stmt struct {
	conn      *Conn
	stmt      *sqlite3.Stmt
	finalized bool
}

var _ store.Stmt = (*Stmt)(nil)

func (s *Stmt) bind(params []store.Value) error {
	if err := s.stmt.ClearBindings(); err != nil {
		return err
	}
	if want := s.stmt.BindCount(); want != len(params) {
		return fmt.Errorf("%w: statement expects %d parameters, got %d", store.ErrTypeMismatch, want, len(params))
	}
	for i, p := range params {
		v, err := store.Normalize(p)
		if err != nil {
			return err
		}
		// parameters are 1-indexed
		idx := i + 1
		switch t := v.(type) {
		case nil:
			err = s.stmt.BindNull(idx)
		case int64:
			err = s.stmt.BindInt64(idx, t)
		case float64:
			err = s.stmt.BindFloat(idx, t)
		case string:
			err = s.stmt.BindText(idx, t)
		case []byte:
			err = s.stmt.BindBlob(idx, t)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Stmt) Exec(ctx context.Context, params []store.Value) (store.Result, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.finalized {
		return store.Result{}, store.ErrDoubleFinalize
	}

	var res store.Result
	err := s.conn.withInterrupt(ctx, func() error {
		if err := s.bind(params); err != nil {
			return err
		}
		if err := s.stmt.Exec(); err != nil {
			return err
		}
		res = store.Result{
			RowsAffected: s.conn.db.Changes(),
			LastInsertID: s.conn.db.LastInsertRowID(),
		}
		return nil
	})
	return res, err
}

func (s *Stmt) Query(ctx context.Context, params []store.Value) ([]store.Record, error) {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.finalized {
		return nil, store.ErrDoubleFinalize
	}

	var rows []store.Record
	err := s.conn.withInterrupt(ctx, func() error {
		if err := s.bind(params); err != nil {
			return err
		}
		defer s.stmt.Reset()

		n := s.stmt.ColumnCount()
		for s.stmt.Step() {
			row := make(store.Record, n)
			for i := 0; i < n; i++ {
				row[i] = store.Field{
					Column: s.stmt.ColumnName(i),
					Value:  s.column(i),
				}
			}
			rows = append(rows, row)
		}
		return s.stmt.Err()
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Stmt) column(i int) store.Value {
	switch s.stmt.ColumnType(i) {
	case sqlite3.INTEGER:
		return s.stmt.ColumnInt64(i)
	case sqlite3.FLOAT:
		return s.stmt.ColumnFloat(i)
	case sqlite3.TEXT:
		return s.stmt.ColumnText(i)
	case sqlite3.BLOB:
		return s.stmt.ColumnBlob(i, nil)
	default:
		return nil
	}
}

func (s *Stmt) Finalize() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()

	if s.finalized {
		return store.ErrDoubleFinalize
	}
	s.finalized = true
	return Translate(nil, s.stmt.Close())
}
