package application

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/config"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/matchmaking"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/repository"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/repository/mongodb"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/service"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/session"
	"github.com/rocketscienceinc/tictactoe-matchmaking/transport/rest"
	"github.com/rocketscienceinc/tictactoe-matchmaking/transport/websocket"
)

var ErrAddrNotFound = errors.New("store address is empty")

// RunApp - runs the application until ctx is canceled or a server fails.
func RunApp(ctx context.Context, logger *zap.Logger, conf *config.Config) error {
	log := logger.With(zap.String("component", "app"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	gameService, closeStore, err := OpenGameService(ctx, conf)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeStore(); err != nil {
			log.Error("could not close game store", zap.Error(err))
		}
	}()

	coordinator := matchmaking.NewCoordinator(logger, gameService)

	newSession := func() *session.Session {
		return session.New(logger, gameService, coordinator,
			session.WithMatchmaking(conf.Matchmaking),
			session.WithCleanupDelay(conf.Session.CleanupDelayMin, conf.Session.CleanupDelayMax),
		)
	}

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("port", conf.HTTPPort))
		if httpErr := rest.Start(ctx, conf.HTTPPort, rest.NewRouter(logger, coordinator)); httpErr != nil {
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", zap.String("port", conf.SocketPort))
		if wsErr := websocket.New(logger, newSession).Start(ctx, conf.SocketPort); wsErr != nil {
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

// OpenGameService connects the configured driver and returns the game service backed by it.
func OpenGameService(ctx context.Context, conf *config.Config) (*service.GameService, func() error, error) {
	switch conf.Store.Driver {
	case config.DriverMongo:
		if conf.Mongo.URI == "" {
			return nil, nil, ErrAddrNotFound
		}

		client, db, err := storage.NewMongo(ctx, conf.Mongo)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to mongo storage: %w", err)
		}

		return service.NewGameService(mongodb.NewGameRepository(db)), func() error {
			return client.Disconnect(context.Background())
		}, nil
	default:
		if conf.Redis.Host == "" {
			return nil, nil, ErrAddrNotFound
		}

		client, err := storage.NewRedis(ctx, conf.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		return service.NewGameService(repository.NewGameRepository(client)), client.Close, nil
	}
}
