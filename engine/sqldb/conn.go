package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.miragespace.co/sqlrepo/engine/sqlite3"
	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/ncruces/go-sqlite3/gormlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"moul.io/zapgorm2"
)

type Config struct {
	Logger      *zap.Logger
	Path        string
	BusyTimeout time.Duration
}

func (c Config) validate() error {
	if c.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	if c.Path == "" {
		return fmt.Errorf("empty Path is invalid")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("negative BusyTimeout is invalid")
	}
	return nil
}

// Conn pins one connection out of a database/sql pool managed by gorm.
// database/sql is safe for concurrent use, but statements of one transaction
// must not interleave with another, so calls are serialized by mu.
type Conn struct {
	logger *zap.Logger
	gorm   *gorm.DB
	db     *sql.DB
	conn   *sql.Conn

	mu sync.Mutex
	tx *sql.Tx
}

var _ store.Conn = (*Conn)(nil)

func dsn(path string, busy time.Duration) string {
	if path == sqlite3.MemoryPath {
		return fmt.Sprintf("file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate", busy.Milliseconds())
	}
	return fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=synchronous(1)&_txlock=immediate", path, busy.Milliseconds())
}

func Open(ctx context.Context, cfg Config) (*Conn, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := zapgorm2.New(cfg.Logger)
	logger.IgnoreRecordNotFoundError = true
	logger.SlowThreshold = time.Millisecond * 500

	g, err := gorm.Open(gormlite.Open(dsn(cfg.Path, cfg.BusyTimeout)), &gorm.Config{
		Logger:                 logger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, sqlite3.Translate(ctx, err)
	}

	if err := g.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return nil, sqlite3.Translate(ctx, err)
	}

	db, err := g.DB()
	if err != nil {
		return nil, err
	}
	// one physical connection; also keeps :memory: databases alive
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(0)
	db.SetConnMaxLifetime(0)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, sqlite3.Translate(ctx, err)
	}

	cfg.Logger.Info("SQLite via database/sql", zap.String("path", cfg.Path))

	return &Conn{
		logger: cfg.Logger,
		gorm:   g,
		db:     db,
		conn:   conn,
	}, nil
}

func (c *Conn) Prepare(ctx context.Context, query string) (store.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("sqldb: connection is closed")
	}

	var (
		stmt *sql.Stmt
		err  error
	)
	if c.tx != nil {
		stmt, err = c.tx.PrepareContext(ctx, query)
	} else {
		stmt, err = c.conn.PrepareContext(ctx, query)
	}
	if err != nil {
		return nil, sqlite3.Translate(ctx, err)
	}
	return &Stmt{conn: c, stmt: stmt}, nil
}

func (c *Conn) Begin(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("sqldb: connection is closed")
	}
	if c.tx != nil {
		return store.ErrTransactionAlreadyOpen
	}
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return sqlite3.Translate(ctx, err)
	}
	c.tx = tx
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return store.ErrTransactionDone
	}
	err := c.tx.Commit()
	c.tx = nil
	return sqlite3.Translate(ctx, err)
}

func (c *Conn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err == sql.ErrTxDone {
		return nil
	}
	return sqlite3.Translate(ctx, err)
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	if c.tx != nil {
		c.tx.Rollback()
		c.tx = nil
	}
	c.conn.Close()
	c.conn = nil

	// the pinned connection is back in the pool, let the engine refresh statistics
	if err := c.gorm.Exec("PRAGMA optimize").Error; err != nil {
		c.logger.Warn("Failed to optimize database before closing", zap.Error(err))
	}
	return c.db.Close()
}
