package pool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.miragespace.co/sqlrepo/engine/sqldb"
	"go.miragespace.co/sqlrepo/engine/sqlite3"
	"go.miragespace.co/sqlrepo/executor"
	"go.miragespace.co/sqlrepo/spec/store"
	"go.miragespace.co/sqlrepo/util/atomic"

	"github.com/zhangyunhao116/skipmap"
	uberAtomic "go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	EngineNative = "native"
	EngineSQL    = "sql"

	// MemoryName selects a private in-memory database.
	MemoryName = sqlite3.MemoryPath
)

type Config struct {
	Logger  *zap.Logger
	DataDir string
	Engine  string
	// BusyTimeout is how long the engine itself waits on a locked database
	// before reporting busy.
	BusyTimeout        time.Duration
	StatementTimeout   time.Duration
	TransactionTimeout time.Duration
	BusyAttempts       uint
	BusyDelay          time.Duration
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return fmt.Errorf("nil Logger is invalid")
	}
	switch c.Engine {
	case "":
		c.Engine = EngineNative
	case EngineNative, EngineSQL:
	default:
		return fmt.Errorf("unknown engine: %s", c.Engine)
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("negative BusyTimeout is invalid")
	}
	return nil
}

// Pool opens one executor per connection identifier and hands out the same
// executor to every caller asking for that identifier.
type Pool struct {
	logger    *zap.Logger
	cfg       Config
	opening   *atomic.KeyedMutex
	executors *skipmap.StringMap[*executor.Executor]
	closed    *uberAtomic.Bool
}

func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return &Pool{
		logger:    cfg.Logger,
		cfg:       cfg,
		opening:   atomic.NewKeyedMutex(),
		executors: skipmap.NewString[*executor.Executor](),
		closed:    uberAtomic.NewBool(false),
	}, nil
}

func (p *Pool) path(name string) (string, error) {
	if name == MemoryName {
		return sqlite3.MemoryPath, nil
	}
	if !store.ValidIdentifier(name) {
		return "", fmt.Errorf("invalid connection name: %q", name)
	}
	if p.cfg.DataDir == "" {
		return "", fmt.Errorf("connection %q requires a data directory", name)
	}
	return filepath.Join(p.cfg.DataDir, name+".db"), nil
}

func (p *Pool) open(ctx context.Context, logger *zap.Logger, path string) (store.Conn, error) {
	switch p.cfg.Engine {
	case EngineSQL:
		conn, err := sqldb.Open(ctx, sqldb.Config{
			Logger:      logger,
			Path:        path,
			BusyTimeout: p.cfg.BusyTimeout,
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		conn, err := sqlite3.Open(sqlite3.Config{
			Logger:      logger,
			Path:        path,
			BusyTimeout: p.cfg.BusyTimeout,
			CacheDir:    p.cacheDir(),
		})
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// cacheDir keeps compiled engine code next to the database files.
func (p *Pool) cacheDir() string {
	if p.cfg.DataDir == "" {
		return ""
	}
	return filepath.Join(p.cfg.DataDir, ".wazero")
}

// Executor returns the executor of connection name, opening it on first use.
// MemoryName opens an in-memory database, any other name a file under DataDir.
func (p *Pool) Executor(ctx context.Context, name string) (*executor.Executor, error) {
	if p.closed.Load() {
		return nil, store.ErrPoolClosed
	}
	if e, ok := p.executors.Load(name); ok {
		return e, nil
	}

	unlock := p.opening.Lock(name)
	defer unlock()

	if p.closed.Load() {
		return nil, store.ErrPoolClosed
	}
	if e, ok := p.executors.Load(name); ok {
		return e, nil
	}

	path, err := p.path(name)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With(zap.String("connection", name), zap.String("engine", p.cfg.Engine))
	conn, err := p.open(ctx, logger, path)
	if err != nil {
		return nil, err
	}

	e, err := executor.New(executor.Config{
		Logger:             logger,
		Conn:               conn,
		StatementTimeout:   p.cfg.StatementTimeout,
		TransactionTimeout: p.cfg.TransactionTimeout,
		BusyAttempts:       p.cfg.BusyAttempts,
		BusyDelay:          p.cfg.BusyDelay,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}

	p.executors.Store(name, e)
	// Close may have ranged past name while we were opening
	if p.closed.Load() {
		p.executors.Delete(name)
		e.Close()
		return nil, store.ErrPoolClosed
	}
	logger.Debug("Connection opened", zap.String("path", path))

	return e, nil
}

// Close closes every opened connection. Executor fails with ErrPoolClosed afterward.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	p.executors.Range(func(name string, e *executor.Executor) bool {
		unlock := p.opening.Lock(name)
		defer unlock()

		if cErr := e.Close(); cErr != nil {
			p.logger.Error("Failed to close connection", zap.String("connection", name), zap.Error(cErr))
			err = multierr.Append(err, fmt.Errorf("closing %s: %w", name, cErr))
		}
		p.executors.Delete(name)
		return true
	})
	return err
}
