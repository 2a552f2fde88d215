package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

func (that *Session) onEvent(ctx context.Context, event entity.ChangeEvent) {
	switch event.Kind {
	case entity.Changed:
		that.onChange(event.Game, false)
	case entity.Removed:
		that.onRemove(ctx, event.Game)
	default:
		that.logger.Warn("unknown change event", zap.String("type", string(event.Kind)))
	}
}

// onChange mirrors the record into the session. Copies older than what the session
// already shows are ignored unless force is set.
func (that *Session) onChange(game *entity.Game, force bool) {
	if game == nil || game.ID != that.gameID {
		return
	}

	if !force && game.Progress() < that.progress {
		return
	}

	that.mirror(game.Board, game.TurnMark, game.IsPending())
	that.progress = game.Progress()
	that.publish()
}

// mirror updates the local copy of the game and derives the session state from it.
func (that *Session) mirror(board entity.Board, turn entity.Mark, isPending bool) {
	that.board = board
	that.isPending = isPending
	that.isMyTurn = turn == that.mark

	outcome := board.Result()
	that.winner = outcome.Winner
	that.draw = outcome.Draw

	if board.Concluded() {
		that.state = StateConcluded
		that.stopRescan()
		that.scheduleCleanup()
		return
	}

	stopTimer(that.cleanup)
	that.cleanup = nil

	if isPending {
		that.state = StateWaiting
		that.scheduleRescan()
	} else {
		that.state = StateActive
		that.stopRescan()
	}
}

// onRemove starts the rematch when the current game disappears.
func (that *Session) onRemove(ctx context.Context, game *entity.Game) {
	if game == nil || game.ID != that.gameID {
		return
	}

	that.logger.Debug("game removed, searching again", zap.String("game_id", game.ID))

	that.find(ctx)
}

// onFeedClosed re-attaches to the current game when its feed ends unexpectedly.
func (that *Session) onFeedClosed(ctx context.Context) {
	log := that.logger.With(zap.String("method", "onFeedClosed"), zap.String("game_id", that.gameID))

	that.feed = nil

	feed, err := that.store.Subscribe(ctx, that.gameID)
	if err != nil {
		log.Warn("failed to resubscribe, searching again", zap.Error(err))
		that.abandon()
		that.find(ctx)
		return
	}

	that.feed = feed

	that.resync(ctx)
}

// resync replaces the local mirror with the stored record.
func (that *Session) resync(ctx context.Context) {
	gameID := that.gameID

	game, err := that.store.GetByID(ctx, gameID)
	if errors.Is(err, apperror.ErrGameNotFound) {
		that.onRemove(ctx, &entity.Game{ID: gameID})
		return
	}

	if err != nil {
		that.logger.Warn("failed to resync game", zap.String("game_id", gameID), zap.Error(err))
		return
	}

	that.onChange(game, true)
}

func (that *Session) scheduleCleanup() {
	if that.cleanup != nil {
		return
	}

	delay := that.cleanupMin
	if spread := that.cleanupMax - that.cleanupMin; spread > 0 {
		delay += time.Duration(that.rand.Int64N(int64(spread)))
	}

	that.cleanup = time.NewTimer(delay)
}

// removeConcludedGame deletes the finished game. Both players race to do it; the
// loser deletes nothing. The removal event triggers the rematch.
func (that *Session) removeConcludedGame(ctx context.Context) {
	if that.gameID == "" {
		return
	}

	if err := that.store.DeleteByID(ctx, that.gameID); err != nil {
		that.logger.Warn("failed to delete concluded game", zap.String("game_id", that.gameID), zap.Error(err))
		that.scheduleCleanup()
	}
}

func (that *Session) canPlay() bool {
	return that.gameID != "" && that.isMyTurn && !that.isPending && !that.board.HasWinner()
}

func (that *Session) play(ctx context.Context, row, column int) error {
	if !that.canPlay() {
		return ErrCannotPlay
	}

	current, err := that.board.Get(row, column)
	if err != nil {
		return err
	}

	if !current.IsEmpty() {
		return apperror.ErrCellOccupied
	}

	board, err := that.board.Set(row, column, that.mark)
	if err != nil {
		return err
	}

	that.passTurn(ctx, board, entity.Move{PlayerID: that.playerID, Row: row, Column: column})

	return nil
}

// passTurn hands the turn to the rival locally and commits the move in the background.
// The rival sees the move through the feed.
func (that *Session) passTurn(ctx context.Context, board entity.Board, move entity.Move) {
	that.mirror(board, that.rival, false)
	that.progress++
	that.publish()

	gameID := that.gameID

	go func() {
		_, err := that.store.CommitMove(ctx, gameID, move)

		select {
		case that.commits <- commitResult{gameID: gameID, err: err}:
		case <-that.done:
		}
	}()
}

func (that *Session) onCommitResult(ctx context.Context, result commitResult) {
	if result.err == nil || result.gameID != that.gameID || ctx.Err() != nil {
		return
	}

	that.logger.Warn("move was rejected, resyncing", zap.String("game_id", result.gameID), zap.Error(result.err))

	that.resync(ctx)
}
