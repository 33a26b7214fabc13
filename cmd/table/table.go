package table

import (
	"fmt"
	"os"
	"time"

	"go.miragespace.co/sqlrepo/pool"
	"go.miragespace.co/sqlrepo/repository"
	"go.miragespace.co/sqlrepo/spec/store"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Flags are the connection flags, meant for the root app.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "config",
			Aliases:  []string{"c"},
			Usage:    "path to the table config yaml file",
			EnvVars:  []string{"SQLREPO_CONFIG"},
			Category: "Connection Options",
		},
		&cli.StringFlag{
			Name:     "data-dir",
			Value:    "data",
			Usage:    "directory holding database files, one <connection>.db per connection",
			EnvVars:  []string{"SQLREPO_DATA_DIR"},
			Category: "Connection Options",
		},
		&cli.StringFlag{
			Name:     "engine",
			Value:    pool.EngineNative,
			Usage:    fmt.Sprintf("database engine driver: %q uses the engine directly, %q goes through database/sql", pool.EngineNative, pool.EngineSQL),
			Category: "Connection Options",
		},
		&cli.DurationFlag{
			Name:     "statement-timeout",
			Value:    time.Second * 5,
			Usage:    "deadline for a single statement, 0 to disable",
			Category: "Connection Options",
		},
		&cli.DurationFlag{
			Name:     "transaction-timeout",
			Value:    time.Second * 30,
			Usage:    "deadline for a whole transaction, 0 to disable",
			Category: "Connection Options",
		},
		&cli.DurationFlag{
			Name:     "busy-timeout",
			Value:    time.Second,
			Usage:    "how long the engine waits on a locked database before reporting busy",
			Category: "Connection Options",
		},
		&cli.UintFlag{
			Name:     "busy-attempts",
			Value:    5,
			Usage:    "how many times a busy statement is tried before giving up",
			Category: "Connection Options",
		},
	}
}

func tableFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "table",
		Aliases:  []string{"t"},
		Usage:    "name of a table declared in the config",
		Required: true,
	}
}

func idFlag() cli.Flag {
	return &cli.Int64Flag{
		Name:     "id",
		Usage:    "identity of the row",
		Required: true,
	}
}

func setFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "set",
		Aliases: []string{"s"},
		Usage:   fmt.Sprintf("column=value (repeatable); %s stores a null, blobs are hex", NullLiteral),
	}
}

func whereFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:    "where",
		Aliases: []string{"w"},
		Usage:   "column:op:value (repeatable, combined with AND); op is one of eq, ne, gt, gte, lt, lte, like, in. Values of in are comma separated",
	}
}

func Generate() *cli.Command {
	return &cli.Command{
		Name:        "table",
		Usage:       "manage rows of the tables declared in the config",
		Description: `Every command opens the connection named in the config, runs in its own transaction, and prints the outcome as a table.`,
		ArgsUsage:   " ",
		Subcommands: []*cli.Command{
			{
				Name:      "init",
				Usage:     "create every declared table that does not exist yet",
				ArgsUsage: " ",
				Action:    cmdInit,
			},
			{
				Name:      "insert",
				Usage:     "insert one row and print it as stored",
				ArgsUsage: " ",
				Flags:     []cli.Flag{tableFlag(), setFlag()},
				Action:    cmdInsert,
			},
			{
				Name:      "update",
				Usage:     "update the columns given with --set of the row with --id",
				ArgsUsage: " ",
				Flags:     []cli.Flag{tableFlag(), idFlag(), setFlag()},
				Action:    cmdUpdate,
			},
			{
				Name:      "find",
				Usage:     "print the row with --id",
				ArgsUsage: " ",
				Flags:     []cli.Flag{tableFlag(), idFlag()},
				Action:    cmdFind,
			},
			{
				Name:      "query",
				Usage:     "print the rows matching every --where",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					tableFlag(),
					whereFlag(),
					&cli.StringSliceFlag{
						Name:    "order",
						Aliases: []string{"o"},
						Usage:   "column or column:desc (repeatable); rows are ordered by id when omitted",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: -1,
						Usage: "maximum number of rows, negative for no limit",
					},
				},
				Action: cmdQuery,
			},
			{
				Name:      "count",
				Usage:     "count the rows matching every --where",
				ArgsUsage: " ",
				Flags:     []cli.Flag{tableFlag(), whereFlag()},
				Action:    cmdCount,
			},
			{
				Name:      "destroy",
				Usage:     "delete the row with --id",
				ArgsUsage: " ",
				Flags:     []cli.Flag{tableFlag(), idFlag()},
				Action:    cmdDestroy,
			},
			{
				Name:      "destroy-all",
				Usage:     "delete every row of the table",
				ArgsUsage: " ",
				Flags:     []cli.Flag{tableFlag()},
				Action:    cmdDestroyAll,
			},
			{
				Name:      "bulk",
				Usage:     "insert or replace every row of a yaml list in one transaction",
				ArgsUsage: " ",
				Flags: []cli.Flag{
					tableFlag(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "path to a yaml file holding a list of column to value mappings",
						Required: true,
					},
				},
				Action: cmdBulk,
			},
			{
				Name:      "example",
				Usage:     "print an example config",
				ArgsUsage: " ",
				Action:    cmdExample,
			},
		},
	}
}

type session struct {
	logger *zap.Logger
	config *Config
	pool   *pool.Pool
}

func openSession(ctx *cli.Context) (*session, error) {
	logger := ctx.App.Metadata["logger"].(*zap.Logger)

	if !ctx.IsSet("config") {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := NewConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	dataDir := ctx.String("data-dir")
	if cfg.Connection == pool.MemoryName {
		dataDir = ""
	}
	p, err := pool.New(pool.Config{
		Logger:             logger,
		DataDir:            dataDir,
		Engine:             ctx.String("engine"),
		BusyTimeout:        ctx.Duration("busy-timeout"),
		StatementTimeout:   ctx.Duration("statement-timeout"),
		TransactionTimeout: ctx.Duration("transaction-timeout"),
		BusyAttempts:       ctx.Uint("busy-attempts"),
	})
	if err != nil {
		return nil, err
	}

	return &session{
		logger: logger,
		config: cfg,
		pool:   p,
	}, nil
}

func (s *session) Close() {
	if err := s.pool.Close(); err != nil {
		s.logger.Error("Failed to close connections", zap.Error(err))
	}
}

func (s *session) repository(ctx *cli.Context) (*repository.Repository[store.Record], error) {
	schema, err := s.config.Schema(ctx.String("table"))
	if err != nil {
		return nil, err
	}
	e, err := s.pool.Executor(ctx.Context, s.config.Connection)
	if err != nil {
		return nil, err
	}
	// the table may not exist yet on a fresh connection
	if err := e.EnsureTable(ctx.Context, schema); err != nil {
		return nil, err
	}
	return repository.New(repository.Config[store.Record]{
		Logger:   s.logger,
		Executor: e,
		Schema:   schema,
	})
}

// withRepository opens the repository of --table for the duration of fn.
func withRepository(ctx *cli.Context, fn func(repo *repository.Repository[store.Record]) error) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	repo, err := s.repository(ctx)
	if err != nil {
		return err
	}
	return fn(repo)
}

func cmdInit(ctx *cli.Context) error {
	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := s.pool.Executor(ctx.Context, s.config.Connection)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(s.config.Tables))
	for _, schema := range s.config.Schemas() {
		if err := e.EnsureTable(ctx.Context, schema); err != nil {
			return fmt.Errorf("creating %s: %w", schema.Table, err)
		}
		names = append(names, schema.Table)
	}
	s.logger.Info("Tables ready", zap.String("connection", s.config.Connection), zap.Strings("tables", names))
	FormatValue("Tables", len(names), ctx.App.Writer)
	return nil
}

func cmdInsert(ctx *cli.Context) error {
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		r, err := parseAssignments(repo.Schema(), ctx.StringSlice("set"))
		if err != nil {
			return err
		}
		stored, err := repo.Insert(ctx.Context, r)
		if err != nil {
			return err
		}
		FormatRecords(repo.Schema(), []store.Record{stored}, ctx.App.Writer)
		return nil
	})
}

func cmdUpdate(ctx *cli.Context) error {
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		r, err := parseAssignments(repo.Schema(), ctx.StringSlice("set"))
		if err != nil {
			return err
		}
		r = r.Set(store.IDColumn, ctx.Int64("id"))
		res, err := repo.Update(ctx.Context, r)
		if err != nil {
			return err
		}
		FormatResults([]store.Result{res}, ctx.App.Writer)
		return nil
	})
}

func cmdFind(ctx *cli.Context) error {
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		r, err := repo.Find(ctx.Context, ctx.Int64("id"))
		if err != nil {
			return err
		}
		FormatRecords(repo.Schema(), []store.Record{r}, ctx.App.Writer)
		return nil
	})
}

func cmdQuery(ctx *cli.Context) error {
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		where, err := parsePredicates(repo.Schema(), ctx.StringSlice("where"))
		if err != nil {
			return err
		}
		order, err := parseOrder(ctx.StringSlice("order"))
		if err != nil {
			return err
		}
		spec := store.QuerySpec{
			Where:   where,
			OrderBy: order,
		}
		if limit := ctx.Int("limit"); limit >= 0 {
			spec.Limit = store.Limit(limit)
		}
		rows, err := repo.Query(ctx.Context, spec)
		if err != nil {
			return err
		}
		FormatRecords(repo.Schema(), rows, ctx.App.Writer)
		return nil
	})
}

func cmdCount(ctx *cli.Context) error {
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		where, err := parsePredicates(repo.Schema(), ctx.StringSlice("where"))
		if err != nil {
			return err
		}
		n, err := repo.Count(ctx.Context, where...)
		if err != nil {
			return err
		}
		FormatValue("Count", n, ctx.App.Writer)
		return nil
	})
}

func cmdDestroy(ctx *cli.Context) error {
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		ok, err := repo.Destroy(ctx.Context, ctx.Int64("id"))
		if err != nil {
			return err
		}
		FormatValue("Destroyed", ok, ctx.App.Writer)
		return nil
	})
}

func cmdDestroyAll(ctx *cli.Context) error {
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		ok, err := repo.DestroyAll(ctx.Context)
		if err != nil {
			return err
		}
		FormatValue("Destroyed", ok, ctx.App.Writer)
		return nil
	})
}

func readRows(path string) ([]store.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening rows file for reading: %w", err)
	}
	defer f.Close()

	var rows []map[string]any
	if err := yaml.NewDecoder(f).Decode(&rows); err != nil {
		return nil, fmt.Errorf("error decoding rows file: %w", err)
	}
	records := make([]store.Record, len(rows))
	for i, row := range rows {
		records[i] = rowRecord(row)
	}
	return records, nil
}

func cmdBulk(ctx *cli.Context) error {
	rows, err := readRows(ctx.String("file"))
	if err != nil {
		return err
	}
	return withRepository(ctx, func(repo *repository.Repository[store.Record]) error {
		results, err := repo.BulkInsertOrReplace(ctx.Context, rows)
		if err != nil {
			return err
		}
		FormatResults(results, ctx.App.Writer)
		return nil
	})
}

func cmdExample(ctx *cli.Context) error {
	example := Config{
		Version:    1,
		Connection: "app",
		Tables: []Table{
			{
				Name: "users",
				Columns: Columns{
					{Name: "name", Type: store.Text},
					{Name: "age", Type: store.Integer},
				},
			},
		},
	}
	encoder := yaml.NewEncoder(ctx.App.Writer)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(&example)
}
