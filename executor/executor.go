package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.miragespace.co/sqlrepo/query"
	"go.miragespace.co/sqlrepo/spec/store"
	"go.miragespace.co/sqlrepo/txn"

	"go.uber.org/zap"
)

const (
	DefaultBusyAttempts = 5
	DefaultBusyDelay    = time.Millisecond * 10
)

type Config struct {
	Logger *zap.Logger
	Conn   store.Conn
	// StatementTimeout bounds prepare+execute+finalize of one statement. Zero disables it.
	StatementTimeout time.Duration
	// TransactionTimeout bounds begin through commit. Zero disables it.
	TransactionTimeout time.Duration
	// BusyAttempts is the total number of tries of an engine call failing with ErrBusy.
	BusyAttempts uint
	// BusyDelay is the base delay between tries, doubled on every retry and jittered.
	BusyDelay time.Duration
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if c.Conn == nil {
		return fmt.Errorf("nil Conn is invalid")
	}
	if c.StatementTimeout < 0 || c.TransactionTimeout < 0 {
		return fmt.Errorf("negative timeout is invalid")
	}
	if c.BusyAttempts == 0 {
		c.BusyAttempts = DefaultBusyAttempts
	}
	if c.BusyDelay == 0 {
		c.BusyDelay = DefaultBusyDelay
	}
	if c.BusyDelay < time.Microsecond {
		return fmt.Errorf("BusyDelay must be at least 1µs")
	}
	return nil
}

// Executor runs statements against one connection. Every statement is
// prepared, executed and finalized within a single call, and runs inside a
// transaction: the one carried by the context, or a new one.
type Executor struct {
	logger *zap.Logger
	raw    store.Conn
	conn   store.Conn
	coord  *txn.Coordinator
	cfg    Config
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	conn := wrapRetry(cfg.Logger, cfg.Conn, cfg.BusyDelay, cfg.BusyAttempts)
	coord, err := txn.New(txn.Config{
		Logger: cfg.Logger,
		Conn:   conn,
	})
	if err != nil {
		return nil, err
	}

	return &Executor{
		logger: cfg.Logger,
		raw:    cfg.Conn,
		conn:   conn,
		coord:  coord,
		cfg:    cfg,
	}, nil
}

func (e *Executor) Coordinator() *txn.Coordinator {
	return e.coord
}

// Close closes the underlying connection.
func (e *Executor) Close() error {
	return e.raw.Close()
}

// timeout folds bare deadline errors into ErrTimeout.
func timeout(err error) error {
	if err == nil || store.Known(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return store.Wrap(store.ErrTimeout, err)
	}
	return err
}

func (e *Executor) statementContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.cfg.StatementTimeout > 0 {
		return context.WithTimeout(ctx, e.cfg.StatementTimeout)
	}
	return ctx, func() {}
}

func (e *Executor) finalize(stmt store.Stmt, sql string) {
	if err := stmt.Finalize(); err != nil {
		e.logger.Error("Failed to finalize statement", zap.String("sql", sql), zap.Error(err))
	}
}

func (e *Executor) exec(ctx context.Context, sql string, params []store.Value) (store.Result, error) {
	ctx, cancel := e.statementContext(ctx)
	defer cancel()

	stmt, err := e.conn.Prepare(ctx, sql)
	if err != nil {
		return store.Result{}, timeout(err)
	}
	defer e.finalize(stmt, sql)

	res, err := stmt.Exec(ctx, params)
	if err != nil {
		return store.Result{}, timeout(err)
	}
	return res, nil
}

func (e *Executor) query(ctx context.Context, sql string, params []store.Value) ([]store.Record, error) {
	ctx, cancel := e.statementContext(ctx)
	defer cancel()

	stmt, err := e.conn.Prepare(ctx, sql)
	if err != nil {
		return nil, timeout(err)
	}
	defer e.finalize(stmt, sql)

	rows, err := stmt.Query(ctx, params)
	if err != nil {
		return nil, timeout(err)
	}
	return rows, nil
}

// Transaction runs fn inside a new transaction. fn must use the context it is
// given; statements issued through it join the transaction. A nil return
// commits, anything else rolls back. Beginning a transaction from a context
// that already carries one fails with ErrTransactionAlreadyOpen.
func (e *Executor) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if e.cfg.TransactionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.TransactionTimeout)
		defer cancel()
	}

	tx, err := e.coord.Begin(ctx)
	if err != nil {
		return timeout(err)
	}

	defer func() {
		p := recover()
		if err != nil || p != nil {
			// rollback must happen even when ctx is already done
			if rErr := tx.Rollback(context.WithoutCancel(ctx)); rErr != nil {
				e.logger.Error("Failed to roll back transaction", zap.Error(rErr), zap.NamedError("cause", err))
			}
		}
		if p != nil {
			panic(p)
		}
	}()

	if err = fn(txn.WithTx(ctx, tx)); err != nil {
		return timeout(err)
	}
	if err = ctx.Err(); err != nil {
		return timeout(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return timeout(err)
	}
	return nil
}

// Within runs fn in the transaction carried by ctx, or in a new one when
// there is none.
func (e *Executor) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	if e.coord.Active(ctx) != nil {
		return fn(ctx)
	}
	return e.Transaction(ctx, fn)
}

// Execute runs one write statement and reports its effect.
func (e *Executor) Execute(ctx context.Context, sql string, params []store.Value) (store.Result, error) {
	var res store.Result
	err := e.Within(ctx, func(ctx context.Context) (err error) {
		res, err = e.exec(ctx, sql, params)
		return
	})
	if err != nil {
		return store.Result{}, err
	}
	return res, nil
}

// Query runs one row-returning statement.
func (e *Executor) Query(ctx context.Context, sql string, params []store.Value) ([]store.Record, error) {
	var rows []store.Record
	err := e.Within(ctx, func(ctx context.Context) (err error) {
		rows, err = e.query(ctx, sql, params)
		return
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecuteBulk runs every statement, in input order, inside one transaction.
// Results are index-aligned with stmts. The first failure stops the batch,
// rolls the transaction back, and is returned.
func (e *Executor) ExecuteBulk(ctx context.Context, stmts []query.Statement) ([]store.Result, error) {
	if len(stmts) == 0 {
		return []store.Result{}, nil
	}

	results := make([]store.Result, 0, len(stmts))
	err := e.Transaction(ctx, func(ctx context.Context) error {
		for _, s := range stmts {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.exec(ctx, s.SQL, s.Params)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	if err != nil {
		e.logger.Debug("Bulk execution rolled back", zap.Int("statements", len(stmts)), zap.Int("applied", len(results)), zap.Error(err))
		return nil, err
	}
	return results, nil
}

// EnsureTable creates the table declared by schema if it does not exist.
func (e *Executor) EnsureTable(ctx context.Context, schema store.Schema) error {
	sql, err := query.CreateTable(schema)
	if err != nil {
		return err
	}
	_, err = e.Execute(ctx, sql, nil)
	return err
}
