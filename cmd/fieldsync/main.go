package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fieldkeeper/fieldsync/internal/client/cli"
	"github.com/fieldkeeper/fieldsync/internal/client/config"
	"github.com/fieldkeeper/fieldsync/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, closer := logging.New(logging.Options{File: cfg.LogFile, Debug: cfg.Debug})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "start", "error", err)
		os.Exit(1)
	}

	app.Run(ctx)
}
