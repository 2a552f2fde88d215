package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	app "github.com/rocketscienceinc/tictactoe-matchmaking/internal"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/config"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/logger"
)

// main - is the entry point of the application. It initializes the configuration, logger, and runs the application.
func main() {
	defer func() {
		if err := recover(); err != nil {
			fmt.Fprintf(os.Stderr, "recovered from panic: %v\n", err)
			os.Exit(1)
		}
	}()

	conf := initConfig()
	log := initLogger(conf)

	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunApp(ctx, log, conf); err != nil {
		panic(fmt.Errorf("app run failed: %w", err))
	}
}

// initialize config.
func initConfig() *config.Config {
	baseDir, err := os.Getwd()
	if err != nil {
		panic(fmt.Errorf("failed to get current directory: %w", err))
	}

	return config.MustLoad(filepath.Join(baseDir, "./config.yml"))
}

// initialize logger.
func initLogger(conf *config.Config) *zap.Logger {
	log, err := logger.New(conf.LogLevel, conf.LogFormat)
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}

	return log
}
