package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"github.com/loqalabs/jarvis/internal/config"
	"github.com/loqalabs/jarvis/internal/logging"
	"github.com/loqalabs/jarvis/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	configPath := cli.StringP("config", "c", "jarvis.yaml", "Path to configuration file")
	envFile := cli.StringP("env", "e", ".env", "Env file path")
	logLevel := cli.StringP("log", "l", "", "Log level (debug, info, warn, error)")
	loop := cli.Bool("loop", false, "Keep listening after each reply")
	showVersion := cli.Bool("version", false, "Print version and exit")
	cli.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	boot := logging.New(os.Stderr, "pretty", slog.LevelInfo)

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		boot.Error("failed to load env file", slog.String("path", *envFile), logging.Err(err))
		os.Exit(1)
	}

	path := *configPath
	if _, err := os.Stat(path); err != nil && !cli.CommandLine.Changed("config") {
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		boot.Error("failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if cli.CommandLine.Changed("loop") {
		cfg.Pipeline.Loop = *loop
	}
	if *logLevel != "" {
		cfg.Telemetry.LogLevel = *logLevel
	}

	level, err := logging.ParseLevel(cfg.Telemetry.LogLevel)
	if err != nil {
		boot.Error("invalid log level", logging.Err(err))
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, cfg.Telemetry.LogFormat, level)
	slog.SetDefault(logger)

	rt := runtime.New(cfg, logger)
	registerPlayers(rt)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(ctx); err != nil {
		logger.Error("jarvis exited with error", logging.Err(err))
		stop()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}
