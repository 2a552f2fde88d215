package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

type coordinator interface {
	TryJoin(ctx context.Context, gameID, playerID string) (bool, error)
}

// NewRouter exposes the server side of matchmaking.
func NewRouter(logger *zap.Logger, coordinator coordinator) http.Handler {
	pingHandler := NewPingHandler()
	joinHandler := NewJoinHandler(logger, coordinator)

	r := mux.NewRouter()
	r.HandleFunc("/ping", pingHandler.PingHandler).Methods(http.MethodGet)
	r.HandleFunc("/rpc/join", joinHandler.Join).Methods(http.MethodPost)

	return r
}

// Start serves handler on port until ctx is done.
func Start(ctx context.Context, port string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
