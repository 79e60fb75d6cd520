package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"github.com/loqalabs/jarvis/internal/bus"
	"github.com/loqalabs/jarvis/internal/config"
	"github.com/loqalabs/jarvis/internal/logging"
	"github.com/loqalabs/jarvis/internal/monitor"
)

func main() {
	configPath := cli.StringP("config", "c", "", "Path to configuration file")
	servers := cli.StringSliceP("server", "s", nil, "NATS server URL (repeatable)")
	logLevel := cli.StringP("log", "l", "info", "Log level")
	cli.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	logger := logging.New(os.Stdout, "pretty", level)

	cfg, err := config.Read(*configPath)
	if err != nil {
		logger.Error("failed to load config", logging.Err(err))
		os.Exit(1)
	}
	busCfg := cfg.Bus
	if len(*servers) > 0 {
		busCfg.Servers = *servers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := bus.Connect(ctx, busCfg, logger)
	if err != nil {
		logger.Error("failed to connect to bus", logging.Err(err))
		os.Exit(1)
	}
	defer client.Close()

	svc := monitor.NewService(client, logger, nil)
	if err := svc.Start(); err != nil {
		logger.Error("failed to subscribe", logging.Err(err))
		os.Exit(1)
	}
	defer svc.Close()

	logger.Info("watching assistant cycles")
	<-ctx.Done()
}
