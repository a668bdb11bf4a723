package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/xelth-com/eckchat/internal/buildinfo"
	"github.com/xelth-com/eckchat/internal/cmd/migrate"
	"github.com/xelth-com/eckchat/internal/cmd/serve"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:    "eckchat",
		Usage:   "Real-time one-to-one and group messaging server",
		Version: buildinfo.Version,
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
