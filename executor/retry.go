package executor

import (
	"context"
	"errors"
	"expvar"
	"time"

	"go.miragespace.co/sqlrepo/spec/store"
	"go.miragespace.co/sqlrepo/util"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

var busyRetries = expvar.NewInt("executor.busyRetries")

type retryableConn struct {
	store.Conn
	logger        *zap.Logger
	retryInterval time.Duration
	retryAttempts uint
}

type retryableStmt struct {
	store.Stmt
	conn *retryableConn
}

// wrapRetry wraps a given Conn to retry engine calls failing with a
// retryable error. Rollback and Finalize are never retried.
func wrapRetry(logger *zap.Logger, conn store.Conn, interval time.Duration, maxAttempts uint) store.Conn {
	return &retryableConn{
		Conn:          conn,
		logger:        logger,
		retryInterval: interval,
		retryAttempts: maxAttempts,
	}
}

func (c *retryableConn) retryOptions(ctx context.Context) []retry.Option {
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(c.retryAttempts),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return util.Backoff(c.retryInterval, n)
		}),
		retry.OnRetry(func(n uint, err error) {
			busyRetries.Add(1)
			c.logger.Debug("Retrying busy engine call", zap.Uint("attempt", n+1), zap.Error(err))
		}),
		retry.RetryIf(store.ErrorIsRetryable),
		retry.LastErrorOnly(true),
	}
}

func (c *retryableConn) Prepare(ctx context.Context, sql string) (store.Stmt, error) {
	stmt, err := retry.DoWithData(func() (store.Stmt, error) {
		return c.Conn.Prepare(ctx, sql)
	}, c.retryOptions(ctx)...)
	if err != nil {
		return nil, err
	}
	return &retryableStmt{Stmt: stmt, conn: c}, nil
}

func (c *retryableConn) Begin(ctx context.Context) error {
	return retry.Do(func() error {
		return c.Conn.Begin(ctx)
	}, c.retryOptions(ctx)...)
}

// Commit retries a busy commit while the engine keeps the transaction open.
// An engine that ends the transaction on a failed commit reports
// ErrTransactionDone on the next attempt; the first failure is returned then.
func (c *retryableConn) Commit(ctx context.Context) error {
	var (
		first error
		ended bool
	)
	opts := append(c.retryOptions(ctx), retry.RetryIf(func(err error) bool {
		return !ended && store.ErrorIsRetryable(err)
	}))
	return retry.Do(func() error {
		err := c.Conn.Commit(ctx)
		if first != nil && errors.Is(err, store.ErrTransactionDone) {
			ended = true
			return first
		}
		if first == nil {
			first = err
		}
		return err
	}, opts...)
}

func (s *retryableStmt) Exec(ctx context.Context, params []store.Value) (store.Result, error) {
	return retry.DoWithData(func() (store.Result, error) {
		return s.Stmt.Exec(ctx, params)
	}, s.conn.retryOptions(ctx)...)
}

func (s *retryableStmt) Query(ctx context.Context, params []store.Value) ([]store.Record, error) {
	return retry.DoWithData(func() ([]store.Record, error) {
		return s.Stmt.Query(ctx, params)
	}, s.conn.retryOptions(ctx)...)
}
