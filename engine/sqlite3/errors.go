package sqlite3

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/ncruces/go-sqlite3"
)

// Translate maps an engine error onto the store taxonomy. ctx is the context
// the failing call ran under; its deadline turns interrupts into ErrTimeout.
func Translate(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if store.Known(err) {
		return err
	}
	if ctx != nil {
		switch ctx.Err() {
		case context.DeadlineExceeded:
			return store.Wrap(store.ErrTimeout, err)
		case context.Canceled:
			return context.Canceled
		}
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return store.Wrap(store.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, sql.ErrTxDone):
		return store.ErrTransactionDone
	}

	code, ok := errorCode(err)
	if !ok {
		return fmt.Errorf("sqlite3: %v", err)
	}
	switch code {
	case sqlite3.BUSY, sqlite3.LOCKED:
		return store.Wrap(store.ErrBusy, err)
	case sqlite3.CONSTRAINT:
		return store.Wrap(store.ErrConstraintViolation, err)
	case sqlite3.MISMATCH, sqlite3.RANGE, sqlite3.TOOBIG:
		return store.Wrap(store.ErrTypeMismatch, err)
	case sqlite3.INTERRUPT:
		return store.Wrap(store.ErrTimeout, err)
	case sqlite3.ERROR:
		return store.Wrap(store.ErrSyntax, err)
	default:
		return fmt.Errorf("sqlite3: %v", err)
	}
}

func errorCode(err error) (sqlite3.ErrorCode, bool) {
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code(), true
	}
	var code sqlite3.ErrorCode
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}
