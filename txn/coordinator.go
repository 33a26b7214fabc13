package txn

import (
	"context"
	"errors"
	"fmt"

	"go.miragespace.co/sqlrepo/spec/store"

	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type State uint32

const (
	Idle State = iota
	Open
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

type Config struct {
	Logger *zap.Logger
	Conn   store.Conn
}

func (c Config) validate() error {
	if c.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if c.Conn == nil {
		return fmt.Errorf("nil Conn is invalid")
	}
	return nil
}

// Coordinator hands out exclusive ownership of a connection to one
// transaction at a time. Independent callers queue for ownership; a caller
// that already holds an open transaction and tries to begin another fails
// with ErrTransactionAlreadyOpen.
type Coordinator struct {
	logger *zap.Logger
	conn   store.Conn
	owner  *semaphore.Weighted
	open   *atomic.Bool
}

func New(cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Coordinator{
		logger: cfg.Logger,
		conn:   cfg.Conn,
		owner:  semaphore.NewWeighted(1),
		open:   atomic.NewBool(false),
	}, nil
}

// Conn returns the connection this coordinator owns.
func (c *Coordinator) Conn() store.Conn {
	return c.conn
}

func (c *Coordinator) State() State {
	if c.open.Load() {
		return Open
	}
	return Idle
}

func (c *Coordinator) Begin(ctx context.Context) (*Tx, error) {
	if c.Active(ctx) != nil {
		return nil, store.ErrTransactionAlreadyOpen
	}

	if err := c.owner.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, store.Wrap(store.ErrTimeout, err)
		}
		return nil, err
	}

	if err := c.conn.Begin(ctx); err != nil {
		c.owner.Release(1)
		return nil, err
	}
	c.open.Store(true)

	return &Tx{
		coord: c,
		state: atomic.NewUint32(uint32(Open)),
	}, nil
}

func (c *Coordinator) release() {
	c.open.Store(false)
	c.owner.Release(1)
}

// Tx is a transaction in progress. Commit and Rollback are terminal; Rollback
// after a terminal state is a no-op so it can always be deferred.
type Tx struct {
	coord *Coordinator
	state *atomic.Uint32
}

func (t *Tx) State() State {
	return State(t.state.Load())
}

func (t *Tx) Commit(ctx context.Context) error {
	if !t.state.CompareAndSwap(uint32(Open), uint32(Committed)) {
		return store.ErrTransactionDone
	}
	defer t.coord.release()

	if err := t.coord.conn.Commit(ctx); err != nil {
		t.state.Store(uint32(RolledBack))
		if rErr := t.coord.conn.Rollback(context.WithoutCancel(ctx)); rErr != nil {
			t.coord.logger.Error("Failed to roll back after commit failure", zap.Error(rErr), zap.NamedError("commit", err))
		}
		return err
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if !t.state.CompareAndSwap(uint32(Open), uint32(RolledBack)) {
		return nil
	}
	defer t.coord.release()

	return t.coord.conn.Rollback(ctx)
}

type txKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, tx *Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// FromContext returns the transaction carried by ctx, if any.
func FromContext(ctx context.Context) *Tx {
	tx, _ := ctx.Value(txKey{}).(*Tx)
	return tx
}

// Active returns the open transaction of c carried by ctx, if any.
func (c *Coordinator) Active(ctx context.Context) *Tx {
	tx := FromContext(ctx)
	if tx == nil || tx.coord != c || tx.State() != Open {
		return nil
	}
	return tx
}
