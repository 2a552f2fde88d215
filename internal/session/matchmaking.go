package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

var errJoinLost = errors.New("join race lost")

func (that *Session) retryPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = that.matchmaking.InitialInterval
	policy.MaxInterval = that.matchmaking.MaxInterval
	policy.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(policy, that.matchmaking.MaxRetries), ctx)
}

// find looks for an open game and joins it, or creates a new one when none is open.
// A lost join race is retried with a fresh query. When retries run out the session
// creates its own game; when that fails too a new search is scheduled.
func (that *Session) find(ctx context.Context) {
	log := that.logger.With(zap.String("method", "find"))

	that.clear()
	that.setState(StateSearching)

	attempt := func() error {
		candidate, err := that.store.FindPending(ctx, that.playerID)
		if errors.Is(err, apperror.ErrNoPendingGames) {
			return backoff.Permanent(err)
		}

		if err != nil {
			return err
		}

		return that.joinExistingGame(ctx, candidate)
	}

	notify := func(err error, wait time.Duration) {
		log.Debug("retrying matchmaking", zap.Error(err), zap.Duration("wait", wait))
		that.setState(StateSearching)
	}

	err := backoff.RetryNotify(attempt, that.retryPolicy(ctx), notify)
	if err == nil || ctx.Err() != nil {
		return
	}

	if !errors.Is(err, apperror.ErrNoPendingGames) {
		log.Warn("giving up on open games", zap.Error(fmt.Errorf("%w: %w", ErrMatchmakingExhausted, err)))
	}

	if err = that.create(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}

		log.Error("failed to create game", zap.Error(err))

		that.clear()
		that.setState(StateSearching)
		that.retry = time.NewTimer(that.matchmaking.RetryDelay)
	}
}

// joinExistingGame claims the second slot of candidate through the coordinator.
func (that *Session) joinExistingGame(ctx context.Context, candidate *entity.Game) error {
	that.gameID = candidate.ID
	that.setState(StateJoining)

	joined, err := that.joiner.TryJoin(ctx, candidate.ID, that.playerID)
	if err != nil {
		that.clear()
		return fmt.Errorf("failed to join game: %w", err)
	}

	if !joined {
		that.clear()
		return errJoinLost
	}

	joinedGame := candidate.Clone()
	joinedGame.SecondPlayerID = that.playerID

	if err = that.start(ctx, false, joinedGame); err != nil {
		that.abandon()
		return err
	}

	return nil
}

// create inserts a new game owned by this session. The first turn goes to a mark
// drawn at random, independent of which mark the creator holds.
func (that *Session) create(ctx context.Context) error {
	turn := entity.First
	if that.rand.IntN(2) == 1 {
		turn = entity.Second
	}

	// The id is chosen up front so a retried insert cannot produce a second game.
	game := entity.NewGame(that.newID(), that.playerID, turn)

	that.clear()
	that.gameID = game.ID
	that.setState(StateCreating)

	insert := func() error {
		_, err := that.store.Insert(ctx, game)
		if errors.Is(err, apperror.ErrGameAlreadyExists) {
			return backoff.Permanent(err)
		}

		return err
	}

	if err := backoff.Retry(insert, that.retryPolicy(ctx)); err != nil {
		that.clear()
		return fmt.Errorf("failed to insert game: %w", err)
	}

	if err := that.start(ctx, true, game); err != nil {
		that.abandon()
		return err
	}

	return nil
}

// start assigns the marks and begins observing the game feed. The record is read
// once more after subscribing so a change committed in between is not missed.
func (that *Session) start(ctx context.Context, isFirstPlayer bool, game *entity.Game) error {
	that.gameID = game.ID
	that.isFirstPlayer = isFirstPlayer
	that.mark = entity.MarkFor(isFirstPlayer)
	that.rival = that.mark.Opponent()

	feed, err := that.store.Subscribe(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("failed to observe game: %w", err)
	}

	that.feed = feed

	current, err := that.store.GetByID(ctx, game.ID)
	if err != nil {
		return fmt.Errorf("failed to reload game: %w", err)
	}

	that.onChange(current, true)

	return nil
}

func (that *Session) scheduleRescan() {
	if that.rescan != nil {
		return
	}

	// Uniform in [interval/2, 3*interval/2).
	interval := that.matchmaking.RescanInterval
	delay := interval/2 + time.Duration(that.rand.Int64N(int64(interval)))

	that.rescan = time.NewTimer(delay)
}

func (that *Session) stopRescan() {
	stopTimer(that.rescan)
	that.rescan = nil
}

// rescanPending runs while the session waits in its own game. Two sessions that searched
// at the same moment each end up waiting alone; of such a pair only the one holding the
// game with the greater id moves, so both meet in the other game. The own game is only
// dropped while it is still open.
func (that *Session) rescanPending(ctx context.Context) {
	if that.state != StateWaiting || !that.isFirstPlayer {
		return
	}

	log := that.logger.With(zap.String("method", "rescanPending"), zap.String("game_id", that.gameID))

	candidate, err := that.store.FindPending(ctx, that.playerID)
	if err != nil {
		if !errors.Is(err, apperror.ErrNoPendingGames) && ctx.Err() == nil {
			log.Warn("failed to look for open games", zap.Error(err))
		}

		that.scheduleRescan()
		return
	}

	if candidate.ID >= that.gameID {
		that.scheduleRescan()
		return
	}

	deleted, err := that.store.DeletePending(ctx, that.gameID)
	if err != nil {
		log.Warn("failed to drop own game", zap.Error(err))
		that.scheduleRescan()
		return
	}

	if !deleted {
		// The own game was joined or removed meanwhile; the stored record decides.
		that.resync(ctx)
		return
	}

	log.Debug("moving to an older open game", zap.String("candidate_id", candidate.ID))

	that.clear()

	if err = that.joinExistingGame(ctx, candidate); err != nil {
		log.Debug("failed to join older game, searching again", zap.Error(err))
		that.find(ctx)
	}
}
