package sqlrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func testApp(got **zap.Logger) *cli.App {
	return &cli.App{
		Name:  "sqlrepo",
		Flags: App.Flags,
		Before: func(ctx *cli.Context) error {
			ctx.App.Metadata = map[string]interface{}{}
			return ConfigLogger(ctx)
		},
		After: SyncLogger,
		Action: func(ctx *cli.Context) error {
			*got = ctx.App.Metadata["logger"].(*zap.Logger)
			return nil
		},
	}
}

func TestConfigLogger(t *testing.T) {
	as := require.New(t)

	var logger *zap.Logger
	as.NoError(testApp(&logger).RunContext(context.Background(), []string{"sqlrepo", "--verbose"}))
	as.NotNil(logger)
	as.True(logger.Core().Enabled(zap.DebugLevel))

	logger = nil
	as.NoError(testApp(&logger).RunContext(context.Background(), []string{"sqlrepo"}))
	as.NotNil(logger)
	as.False(logger.Core().Enabled(zap.DebugLevel))
}

func TestConfigLoggerFilter(t *testing.T) {
	as := require.New(t)

	var logger *zap.Logger
	as.NoError(testApp(&logger).RunContext(context.Background(), []string{"sqlrepo", "--verbose", "--log-filter", "info+:*"}))
	as.NotNil(logger)
	as.NotNil(logger.Check(zap.WarnLevel, "kept"))
	as.Nil(logger.Check(zap.DebugLevel, "dropped"))

	logger = nil
	err := testApp(&logger).RunContext(context.Background(), []string{"sqlrepo", "--log-filter", "bogus:*"})
	as.Error(err)
	as.Nil(logger)
}
