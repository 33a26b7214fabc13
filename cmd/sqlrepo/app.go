package sqlrepo

import (
	"fmt"
	"runtime"

	"go.miragespace.co/sqlrepo/cmd/table"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"moul.io/zapfilter"
)

var (
	Build = "head"
)

var (
	App = cli.App{
		Name:            "sqlrepo",
		Usage:           fmt.Sprintf("build for %s on %s", runtime.GOARCH, runtime.GOOS),
		Version:         Build,
		HideHelpCommand: true,
		Description:     "typed CRUD over embedded SQLite, with all-or-nothing bulk writes",
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Value: false,
				Usage: "enable verbose logging",
			},
			&cli.StringFlag{
				Name:        "log-filter",
				DefaultText: "everything",
				Usage:       `only emit log entries matching these zapfilter rules, for example "debug+:* -debug:executor*"`,
				EnvVars:     []string{"SQLREPO_LOG_FILTER"},
			},
		}, table.Flags()...),
		Commands: []*cli.Command{
			table.Generate(),
		},
		Before: ConfigLogger,
		After:  SyncLogger,
	}
)

func ConfigLogger(ctx *cli.Context) error {
	var config zap.Config
	if ctx.Bool("verbose") {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	// Redirect everything to stderr
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		return err
	}

	if rules := ctx.String("log-filter"); rules != "" {
		filter, err := zapfilter.ParseRules(rules)
		if err != nil {
			return fmt.Errorf("parsing log filter: %w", err)
		}
		logger = zap.New(zapfilter.NewFilteringCore(logger.Core(), filter))
	}

	_, err = zap.RedirectStdLogAt(logger.With(zap.String("subsystem", "unknown")), zapcore.InfoLevel)
	if err != nil {
		return fmt.Errorf("redirecting stdlog output: %w", err)
	}
	ctx.App.Metadata["logger"] = logger

	return nil
}

func SyncLogger(ctx *cli.Context) error {
	if logger, ok := ctx.App.Metadata["logger"].(*zap.Logger); ok {
		// stderr cannot always be synced, nothing to act on
		logger.Sync()
	}
	return nil
}
