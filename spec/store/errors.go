package store

import (
	"errors"
	"fmt"
)

var (
	ErrBusy = errorDef("store: database is busy", true)

	ErrInvalidColumn          = errorDef("store: invalid column", false)
	ErrMissingIdentifier      = errorDef("store: record has no identifier", false)
	ErrNotFound               = errorDef("store: record not found", false)
	ErrTransactionAlreadyOpen = errorDef("store/txn: a transaction is already open on this connection", false)
	ErrTransactionDone        = errorDef("store/txn: transaction has already been committed or rolled back", false)
	ErrSyntax                 = errorDef("store: malformed sql statement", false)
	ErrConstraintViolation    = errorDef("store: constraint violation", false)
	ErrTypeMismatch           = errorDef("store: type mismatch", false)
	ErrTimeout                = errorDef("store: operation timed out", false)
	ErrDoubleFinalize         = errorDef("store: statement was already finalized", false)
	ErrPoolClosed             = errorDef("store/pool: pool is closed", false)
)

// ErrorIsRetryable reports whether err, or any error it wraps, is
// a transient condition that is safe to retry.
func ErrorIsRetryable(err error) bool {
	for sentinel, retryable := range retryableMap {
		if retryable && errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Known reports whether err already belongs to the taxonomy.
func Known(err error) bool {
	for sentinel := range retryableMap {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// Wrap annotates cause with a taxonomy sentinel. Only the sentinel stays
// matchable with errors.Is; the cause is kept for its message.
func Wrap(sentinel error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return fmt.Errorf("%w: %v", sentinel, cause)
}

var retryableMap map[error]bool = map[error]bool{}

func errorDef(str string, retryable bool) error {
	err := errors.New(str)
	retryableMap[err] = retryable
	return err
}
