package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.miragespace.co/sqlrepo/cmd/sqlrepo"
	"go.miragespace.co/sqlrepo/util"

	"github.com/fatih/color"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	util.PrettierHelpPrinter()

	if err := sqlrepo.App.RunContext(ctx, os.Args); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
