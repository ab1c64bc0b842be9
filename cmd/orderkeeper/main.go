package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/orderkeeper"
	"github.com/dmitrijs2005/orderkeeper/internal/cli"
	"github.com/dmitrijs2005/orderkeeper/internal/config"
	"github.com/dmitrijs2005/orderkeeper/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, args, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		cli.Usage(os.Stderr)
		return 2
	}

	handler := logging.NewConsoleHandler(os.Stderr, cfg.LogFormat, logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewSlogLogger(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	opts := []orderkeeper.Option{
		orderkeeper.WithLogger(logger),
		orderkeeper.WithConnectRetry(cfg.ConnectTimeout),
	}
	if cfg.SkipMigrations {
		opts = append(opts, orderkeeper.WithoutMigrations())
	}

	k, err := orderkeeper.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, opts...)
	if err != nil {
		logger.Error(ctx, "failed to open order store", "error", err)
		return 1
	}
	defer k.Close()

	app := cli.NewApp(k, os.Stdin, os.Stdout, logger)
	if err := app.Run(ctx, args); err != nil {
		logger.Error(ctx, "command failed", "error", err)
		if errors.Is(err, cli.ErrUsage) {
			cli.Usage(os.Stderr)
			return 2
		}
		return 1
	}
	return 0
}
