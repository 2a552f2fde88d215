package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"

	app "github.com/rocketscienceinc/tictactoe-matchmaking/internal"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/autoplayer"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/config"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/logger"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/service"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/session"
	"github.com/rocketscienceinc/tictactoe-matchmaking/transport/rest"
)

const joinTimeout = 5 * time.Second

// main runs one headless player that joins games through the matchmaking RPC.
func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		panic(fmt.Errorf("failed to get current directory: %w", err))
	}

	conf := config.MustLoad(filepath.Join(baseDir, "./config.yml"))

	log, err := logger.New(conf.LogLevel, conf.LogFormat)
	if err != nil {
		panic(fmt.Errorf("failed to build logger: %w", err))
	}

	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, log, conf); err != nil {
		log.Error("autoplayer failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *zap.Logger, conf *config.Config) error {
	gameService, closeStore, err := app.OpenGameService(ctx, conf)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeStore(); err != nil {
			log.Error("could not close game store", zap.Error(err))
		}
	}()

	joiner := rest.NewJoinClient(conf.Autoplayer.JoinURL, &http.Client{Timeout: joinTimeout})

	player := session.New(log, gameService, joiner,
		session.WithMatchmaking(conf.Matchmaking),
		session.WithCleanupDelay(conf.Session.CleanupDelayMin, conf.Session.CleanupDelayMax),
	)
	defer player.Close()

	log.Info("Starting autoplayer", zap.String("player_id", player.PlayerID()), zap.String("join_url", conf.Autoplayer.JoinURL))

	return autoplayer.New(log, player, service.NewMovePicker(nil), conf.Autoplayer.MoveDelay).Run(ctx)
}
