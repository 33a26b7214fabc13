package sqlite3

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/ncruces/go-sqlite3"
	"go.uber.org/zap"
)

const MemoryPath = ":memory:"

type Config struct {
	Logger      *zap.Logger
	Path        string
	BusyTimeout time.Duration
	// CacheDir holds compiled engine code across runs. The engine runtime is
	// shared by the process, so only the first Open applies it.
	CacheDir string
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

// Conn drives a single native engine connection. The engine handle is not
// safe for concurrent use, so every call takes mu.
type Conn struct {
	logger *zap.Logger
	mu     sync.Mutex
	db     *sqlite3.Conn
	closed bool
}

var _ store.Conn = (*Conn)(nil)

func Open(cfg Config) (*Conn, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if err := setupRuntime(cfg.Logger, cfg.CacheDir); err != nil {
		return nil, fmt.Errorf("initializing engine runtime: %w", err)
	}
	cfg.Logger.Debug("Opening database", zap.String("path", cfg.Path))

	db, err := sqlite3.Open(cfg.Path)
	if err != nil {
		return nil, Translate(nil, err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	if cfg.Path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if err := db.Exec(p); err != nil {
			db.Close()
			return nil, Translate(nil, err)
		}
	}
	if cfg.BusyTimeout > 0 {
		if err := db.BusyTimeout(cfg.BusyTimeout); err != nil {
			db.Close()
			return nil, Translate(nil, err)
		}
	}

	return &Conn{
		logger: cfg.Logger,
		db:     db,
	}, nil
}

// withInterrupt runs fn with the engine interruptible by ctx. Callers hold mu.
func (c *Conn) withInterrupt(ctx context.Context, fn func() error) error {
	if c.closed {
		return fmt.Errorf("sqlite3: connection is closed")
	}
	if err := ctx.Err(); err != nil {
		return Translate(ctx, err)
	}
	old := c.db.SetInterrupt(ctx)
	defer c.db.SetInterrupt(old)
	return Translate(ctx, fn())
}

func (c *Conn) Prepare(ctx context.Context, sql string) (store.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stmt *sqlite3.Stmt
	err := c.withInterrupt(ctx, func() error {
		s, tail, err := c.db.Prepare(sql)
		if err != nil {
			return err
		}
		if s == nil {
			return fmt.Errorf("%w: empty statement", store.ErrSyntax)
		}
		if strings.TrimSpace(tail) != "" {
			s.Close()
			return fmt.Errorf("%w: multiple statements are not supported", store.ErrSyntax)
		}
		stmt = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Stmt{conn: c, stmt: stmt}, nil
}

func (c *Conn) exec(ctx context.Context, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withInterrupt(ctx, func() error {
		return c.db.Exec(sql)
	})
}

func (c *Conn) Begin(ctx context.Context) error {
	return c.exec(ctx, "BEGIN IMMEDIATE")
}

func (c *Conn) Commit(ctx context.Context) error {
	return c.exec(ctx, "COMMIT")
}

// Rollback is a no-op when the engine already left the transaction, which
// happens after some failures roll back on their own.
func (c *Conn) Rollback(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.db.GetAutocommit() {
		return nil
	}
	return c.withInterrupt(ctx, func() error {
		return c.db.Exec("ROLLBACK")
	})
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	return Translate(nil, c.db.Close())
}
