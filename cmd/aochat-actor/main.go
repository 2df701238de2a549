package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rudransh-shrivastava/ao-chat/internal/actor"
	"github.com/rudransh-shrivastava/ao-chat/internal/config"
	"github.com/rudransh-shrivastava/ao-chat/internal/logger"
	"github.com/rudransh-shrivastava/ao-chat/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.NewLogger().Fatal(err)
	}
	log, err := logger.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		logger.NewLogger().Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "aochat-actor", cfg.Telemetry.Endpoint, cfg.Telemetry.Enabled)
	if err != nil {
		log.Fatal(err)
	}
	defer shutdown(context.Background())

	network := actor.NewNetwork(log)
	network.Registry(cfg.Actor.Registry)

	server, err := actor.NewServer(actor.Config{
		Addr:    cfg.Actor.Addr,
		Network: network,
		Logger:  log,
	})
	if err != nil {
		log.Fatal(err)
	}

	log.WithField("registry", cfg.Actor.Registry).Info("Serving registry process")
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(err)
	}
}
