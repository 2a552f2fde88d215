package autoplayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/session"
)

type movePicker interface {
	Pick(board entity.Board) (int, int, error)
}

// Player drives a session without a human: it plays a picked cell whenever
// the session may play.
type Player struct {
	logger  *zap.Logger
	session *session.Session
	picker  movePicker
	delay   time.Duration
}

func New(logger *zap.Logger, player *session.Session, picker movePicker, delay time.Duration) *Player {
	return &Player{
		logger:  logger.With(zap.String("player_id", player.PlayerID())),
		session: player,
		picker:  picker,
		delay:   delay,
	}
}

// Run starts the session and plays until ctx is canceled or the session closes.
func (that *Player) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	views, unsubscribe := that.session.Listen()
	defer unsubscribe()

	runErr := make(chan error, 1)
	go func() {
		runErr <- that.session.Run(ctx)
	}()

	for {
		select {
		case err := <-runErr:
			return err
		case view, ok := <-views:
			if !ok {
				return <-runErr
			}

			that.report(view)

			if view.CanPlay() {
				that.move(ctx, view)
			}
		}
	}
}

func (that *Player) report(view session.View) {
	switch {
	case view.State != session.StateConcluded:
		that.logger.Debug("session update", zap.String("state", string(view.State)), zap.String("game_id", view.GameID))
	case view.Draw:
		that.logger.Info("game ended in a draw", zap.String("game_id", view.GameID))
	case view.Winner == view.Mark:
		that.logger.Info("game won", zap.String("game_id", view.GameID))
	default:
		that.logger.Info("game lost", zap.String("game_id", view.GameID))
	}
}

func (that *Player) move(ctx context.Context, view session.View) {
	log := that.logger.With(zap.String("method", "move"), zap.String("game_id", view.GameID))

	select {
	case <-ctx.Done():
		return
	case <-time.After(that.delay):
	}

	row, column, err := that.picker.Pick(view.Board)
	if err != nil {
		log.Warn("failed to pick a move", zap.Error(err))
		return
	}

	err = that.session.Play(ctx, row, column)
	if errors.Is(err, session.ErrCannotPlay) {
		// The view went stale while waiting; the next update decides again.
		return
	}

	if err != nil {
		log.Warn("failed to play", zap.Error(fmt.Errorf("cell %d,%d: %w", row, column, err)))
	}
}
