package txn

import (
	"context"
	"fmt"
	"testing"
	"time"

	"go.miragespace.co/sqlrepo/spec/mocks"
	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testCoordinator(t *testing.T) (*Coordinator, *mocks.Conn) {
	t.Helper()

	as := require.New(t)
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.AddCaller()))

	conn := new(mocks.Conn)
	c, err := New(Config{
		Logger: logger,
		Conn:   conn,
	})
	as.NoError(err)

	t.Cleanup(func() {
		conn.AssertExpectations(t)
	})

	return c, conn
}

func TestConfigValidate(t *testing.T) {
	as := require.New(t)

	_, err := New(Config{Conn: new(mocks.Conn)})
	as.Error(err)

	_, err = New(Config{Logger: zap.NewNop()})
	as.Error(err)
}

func TestCommitLifecycle(t *testing.T) {
	as := require.New(t)
	c, conn := testCoordinator(t)

	conn.On("Begin", mock.Anything).Return(nil).Once()
	conn.On("Commit", mock.Anything).Return(nil).Once()

	as.Equal(Idle, c.State())

	tx, err := c.Begin(context.Background())
	as.NoError(err)
	as.Equal(Open, tx.State())
	as.Equal(Open, c.State())

	as.NoError(tx.Commit(context.Background()))
	as.Equal(Committed, tx.State())
	as.Equal(Idle, c.State())

	// terminal states
	as.ErrorIs(tx.Commit(context.Background()), store.ErrTransactionDone)
	as.NoError(tx.Rollback(context.Background()))
	as.Equal(Committed, tx.State())
}

func TestRollbackLifecycle(t *testing.T) {
	as := require.New(t)
	c, conn := testCoordinator(t)

	conn.On("Begin", mock.Anything).Return(nil).Once()
	conn.On("Rollback", mock.Anything).Return(nil).Once()

	tx, err := c.Begin(context.Background())
	as.NoError(err)

	as.NoError(tx.Rollback(context.Background()))
	as.NoError(tx.Rollback(context.Background()))
	as.Equal(RolledBack, tx.State())
	as.ErrorIs(tx.Commit(context.Background()), store.ErrTransactionDone)
	as.Equal(Idle, c.State())
}

func TestNestedBegin(t *testing.T) {
	as := require.New(t)
	c, conn := testCoordinator(t)

	conn.On("Begin", mock.Anything).Return(nil).Once()
	conn.On("Rollback", mock.Anything).Return(nil).Once()

	tx, err := c.Begin(context.Background())
	as.NoError(err)

	ctx := WithTx(context.Background(), tx)
	as.Equal(tx, c.Active(ctx))

	_, err = c.Begin(ctx)
	as.ErrorIs(err, store.ErrTransactionAlreadyOpen)

	as.NoError(tx.Rollback(ctx))
	as.Nil(c.Active(ctx))
}

func TestForeignTxIgnored(t *testing.T) {
	as := require.New(t)
	a, aConn := testCoordinator(t)
	b, bConn := testCoordinator(t)

	aConn.On("Begin", mock.Anything).Return(nil).Once()
	aConn.On("Commit", mock.Anything).Return(nil).Once()
	bConn.On("Begin", mock.Anything).Return(nil).Once()
	bConn.On("Commit", mock.Anything).Return(nil).Once()

	txA, err := a.Begin(context.Background())
	as.NoError(err)

	ctx := WithTx(context.Background(), txA)
	as.Nil(b.Active(ctx))

	txB, err := b.Begin(ctx)
	as.NoError(err)

	as.NoError(txB.Commit(ctx))
	as.NoError(txA.Commit(ctx))
}

func TestBeginQueues(t *testing.T) {
	as := require.New(t)
	c, conn := testCoordinator(t)

	conn.On("Begin", mock.Anything).Return(nil).Twice()
	conn.On("Commit", mock.Anything).Return(nil).Twice()

	first, err := c.Begin(context.Background())
	as.NoError(err)

	acquired := make(chan *Tx)
	go func() {
		tx, err := c.Begin(context.Background())
		if err != nil {
			close(acquired)
			return
		}
		acquired <- tx
	}()

	select {
	case <-acquired:
		as.FailNow("second transaction began while the first was open")
	case <-time.After(time.Millisecond * 100):
	}

	as.NoError(first.Commit(context.Background()))

	select {
	case second, ok := <-acquired:
		as.True(ok)
		as.NoError(second.Commit(context.Background()))
	case <-time.After(time.Second):
		as.FailNow("second transaction did not begin")
	}
}

func TestBeginTimeout(t *testing.T) {
	as := require.New(t)
	c, conn := testCoordinator(t)

	conn.On("Begin", mock.Anything).Return(nil).Once()
	conn.On("Rollback", mock.Anything).Return(nil).Once()

	tx, err := c.Begin(context.Background())
	as.NoError(err)
	defer tx.Rollback(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	_, err = c.Begin(ctx)
	as.ErrorIs(err, store.ErrTimeout)

	cctx, ccancel := context.WithCancel(context.Background())
	ccancel()
	_, err = c.Begin(cctx)
	as.ErrorIs(err, context.Canceled)
}

func TestBeginFailureReleases(t *testing.T) {
	as := require.New(t)
	c, conn := testCoordinator(t)

	conn.On("Begin", mock.Anything).Return(store.ErrBusy).Once()
	conn.On("Begin", mock.Anything).Return(nil).Once()
	conn.On("Commit", mock.Anything).Return(nil).Once()

	_, err := c.Begin(context.Background())
	as.ErrorIs(err, store.ErrBusy)
	as.Equal(Idle, c.State())

	tx, err := c.Begin(context.Background())
	as.NoError(err)
	as.NoError(tx.Commit(context.Background()))
}

func TestCommitFailure(t *testing.T) {
	as := require.New(t)
	c, conn := testCoordinator(t)

	commitErr := store.Wrap(store.ErrBusy, fmt.Errorf("database is locked"))
	conn.On("Begin", mock.Anything).Return(nil).Once()
	conn.On("Commit", mock.Anything).Return(commitErr).Once()
	conn.On("Rollback", mock.Anything).Return(fmt.Errorf("rollback failed")).Once()

	tx, err := c.Begin(context.Background())
	as.NoError(err)

	err = tx.Commit(context.Background())
	as.ErrorIs(err, store.ErrBusy)
	as.Equal(RolledBack, tx.State())
	as.Equal(Idle, c.State())
}

func TestStateString(t *testing.T) {
	as := require.New(t)

	as.Equal("idle", Idle.String())
	as.Equal("open", Open.String())
	as.Equal("committed", Committed.String())
	as.Equal("rolled back", RolledBack.String())
	as.Equal("State(9)", State(9).String())
}
