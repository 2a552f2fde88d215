package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/pkg"
)

const (
	gameKeyPrefix   = "game:"
	pendingGamesKey = "games:pending"
	feedKeySuffix   = ":feed"

	// maxTxRetries bounds how often an optimistic transaction is replayed after
	// a concurrent write touched the watched key.
	maxTxRetries = 16
)

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// GameRepository keeps game records in Redis and fans out their changes over pub/sub.
//
// Layout:
//
//	game:<id>       JSON encoded entity.Game
//	games:pending   set of ids whose second slot is open
//	game:<id>:feed  pub/sub channel with JSON encoded entity.ChangeEvent
type GameRepository struct {
	client *redis.Client
	newID  func() string
}

func NewGameRepository(client *redis.Client) *GameRepository {
	return &GameRepository{
		client: client,
		newID:  pkg.NewID,
	}
}

func gameKey(id string) string {
	return gameKeyPrefix + id
}

func feedChannel(id string) string {
	return gameKey(id) + feedKeySuffix
}

// Insert stores a new game and returns its id. An id is generated when game.ID is empty.
// Inserting the same id again for the same first player is a no-op, so an insert whose
// outcome is unknown can be retried safely.
func (that *GameRepository) Insert(ctx context.Context, game *entity.Game) (string, error) {
	record := game.Clone()
	if record.ID == "" {
		record.ID = that.newID()
	}

	gameJSON, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("could not marshal game: %w", err)
	}

	created, err := that.client.SetNX(ctx, gameKey(record.ID), gameJSON, 0).Result()
	if err != nil {
		return "", fmt.Errorf("failed to insert game: %w", err)
	}

	if !created {
		existing, err := that.GetByID(ctx, record.ID)
		if err != nil {
			return "", fmt.Errorf("failed to check existing game: %w", err)
		}

		if existing.FirstPlayerID != record.FirstPlayerID {
			return "", fmt.Errorf("%w: %s", apperror.ErrGameAlreadyExists, record.ID)
		}

		record = existing
	}

	if record.IsPending() {
		if err = that.client.SAdd(ctx, pendingGamesKey, record.ID).Err(); err != nil {
			return "", fmt.Errorf("failed to index pending game: %w", err)
		}
	}

	return record.ID, nil
}

func (that *GameRepository) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	return loadGame(ctx, that.client, gameKey(id))
}

// FindPending returns a game with an open second slot that was not created by excludePlayerID.
// Candidates are visited in random order to spread concurrent searchers over the open games.
// The result is only a candidate: the slot must still be claimed with ClaimSecondSlot.
func (that *GameRepository) FindPending(ctx context.Context, excludePlayerID string) (*entity.Game, error) {
	ids, err := that.client.SMembers(ctx, pendingGamesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending games: %w", err)
	}

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	for _, id := range ids {
		game, err := that.GetByID(ctx, id)
		if errors.Is(err, apperror.ErrGameNotFound) {
			that.client.SRem(ctx, pendingGamesKey, id)
			continue
		}

		if err != nil {
			return nil, err
		}

		if !game.IsPending() {
			that.client.SRem(ctx, pendingGamesKey, id)
			continue
		}

		if game.FirstPlayerID == excludePlayerID {
			continue
		}

		return game, nil
	}

	return nil, apperror.ErrNoPendingGames
}

// ClaimSecondSlot sets the second player of gameID to playerID only if the slot is still open.
// It reports false when the slot was already taken, the game is gone, or playerID created the game.
func (that *GameRepository) ClaimSecondSlot(ctx context.Context, gameID, playerID string) (bool, error) {
	key := gameKey(gameID)

	var claimed bool

	err := that.watch(ctx, func(tx *redis.Tx) error {
		claimed = false

		game, err := loadGame(ctx, tx, key)
		if errors.Is(err, apperror.ErrGameNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		if !game.IsPending() || game.FirstPlayerID == playerID {
			return nil
		}

		game.SecondPlayerID = playerID

		gameJSON, event, err := encodeChange(entity.Changed, game)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, gameJSON, 0)
			pipe.SRem(ctx, pendingGamesKey, gameID)
			pipe.Publish(ctx, feedChannel(gameID), event)
			return nil
		})
		if err != nil {
			return err
		}

		claimed = true

		return nil
	}, key)
	if err != nil {
		return false, fmt.Errorf("failed to claim game slot: %w", err)
	}

	return claimed, nil
}

// CommitMove validates move against the stored record and applies it in the same transaction.
func (that *GameRepository) CommitMove(ctx context.Context, gameID string, move entity.Move) (*entity.Game, error) {
	key := gameKey(gameID)

	var committed *entity.Game

	err := that.watch(ctx, func(tx *redis.Tx) error {
		game, err := loadGame(ctx, tx, key)
		if err != nil {
			return err
		}

		if err = game.ApplyMove(move); err != nil {
			return err
		}

		gameJSON, event, err := encodeChange(entity.Changed, game)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, gameJSON, 0)
			pipe.Publish(ctx, feedChannel(gameID), event)
			return nil
		})
		if err != nil {
			return err
		}

		committed = game

		return nil
	}, key)
	if err != nil {
		return nil, fmt.Errorf("failed to commit move: %w", err)
	}

	return committed, nil
}

// DeleteByID removes the game and notifies its subscribers. Deleting a missing game is a no-op.
func (that *GameRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := that.remove(ctx, id, false); err != nil {
		return fmt.Errorf("failed to delete game by ID: %w", err)
	}

	return nil
}

// DeletePending removes the game only while its second slot is still open. It reports
// false when the game is gone or a second player already claimed it.
func (that *GameRepository) DeletePending(ctx context.Context, id string) (bool, error) {
	deleted, err := that.remove(ctx, id, true)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending game: %w", err)
	}

	return deleted, nil
}

func (that *GameRepository) remove(ctx context.Context, id string, onlyPending bool) (bool, error) {
	key := gameKey(id)

	var deleted bool

	err := that.watch(ctx, func(tx *redis.Tx) error {
		deleted = false

		game, err := loadGame(ctx, tx, key)
		if errors.Is(err, apperror.ErrGameNotFound) {
			return nil
		}

		if err != nil {
			return err
		}

		if onlyPending && !game.IsPending() {
			return nil
		}

		_, event, err := encodeChange(entity.Removed, game)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, pendingGamesKey, id)
			pipe.Publish(ctx, feedChannel(id), event)
			return nil
		})
		if err != nil {
			return err
		}

		deleted = true

		return nil
	}, key)

	return deleted, err
}

// Subscribe opens the change feed of a game. The subscription is confirmed by Redis
// before Subscribe returns, so no change committed afterwards is missed.
func (that *GameRepository) Subscribe(ctx context.Context, id string) (entity.Feed, error) {
	pubsub := that.client.Subscribe(ctx, feedChannel(id))

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to game feed: %w", err)
	}

	return newFeed(pubsub), nil
}

func (that *GameRepository) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for range maxTxRetries {
		err := that.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		return err
	}

	return apperror.ErrConcurrentUpdate
}

func loadGame(ctx context.Context, client getter, key string) (*entity.Game, error) {
	response, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrGameNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	var game entity.Game
	if err = json.Unmarshal(response, &game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}

	return &game, nil
}

func encodeChange(kind entity.ChangeKind, game *entity.Game) ([]byte, []byte, error) {
	gameJSON, err := json.Marshal(game)
	if err != nil {
		return nil, nil, fmt.Errorf("could not marshal game: %w", err)
	}

	event, err := json.Marshal(entity.ChangeEvent{Kind: kind, Game: game})
	if err != nil {
		return nil, nil, fmt.Errorf("could not marshal change event: %w", err)
	}

	return gameJSON, event, nil
}
