package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/pkg"
)

const (
	gamesCollection = "games"

	maxCommitRetries = 16
)

// GameRepository keeps game records in a MongoDB collection. Conditional updates
// replace the watch/multi transactions of the Redis store and change streams
// replace pub/sub.
type GameRepository struct {
	collection *mongo.Collection
	newID      func() string
}

func NewGameRepository(db *mongo.Database) *GameRepository {
	return &GameRepository{
		collection: db.Collection(gamesCollection),
		newID:      pkg.NewID,
	}
}

func (that *GameRepository) Insert(ctx context.Context, game *entity.Game) (string, error) {
	record := game.Clone()
	if record.ID == "" {
		record.ID = that.newID()
	}

	_, err := that.collection.InsertOne(ctx, record)
	if err == nil {
		return record.ID, nil
	}

	if !mongo.IsDuplicateKeyError(err) {
		return "", fmt.Errorf("failed to insert game: %w", err)
	}

	existing, err := that.GetByID(ctx, record.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check existing game: %w", err)
	}

	if existing.FirstPlayerID != record.FirstPlayerID {
		return "", fmt.Errorf("%w: %s", apperror.ErrGameAlreadyExists, record.ID)
	}

	return record.ID, nil
}

func (that *GameRepository) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	var game entity.Game

	err := that.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&game)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.ErrGameNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return &game, nil
}

func (that *GameRepository) FindPending(ctx context.Context, excludePlayerID string) (*entity.Game, error) {
	filter := bson.M{
		"second_player_id": "",
		"first_player_id":  bson.M{"$ne": excludePlayerID},
	}

	var game entity.Game

	err := that.collection.FindOne(ctx, filter).Decode(&game)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.ErrNoPendingGames
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find pending game: %w", err)
	}

	return &game, nil
}

// ClaimSecondSlot relies on the filter to make the claim conditional: the update
// only matches while the slot is empty.
func (that *GameRepository) ClaimSecondSlot(ctx context.Context, gameID, playerID string) (bool, error) {
	filter := bson.M{
		"_id":              gameID,
		"second_player_id": "",
		"first_player_id":  bson.M{"$ne": playerID},
	}
	update := bson.M{"$set": bson.M{"second_player_id": playerID}}

	result, err := that.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to claim game slot: %w", err)
	}

	return result.ModifiedCount == 1, nil
}

// CommitMove validates the move against a fresh read and writes it back only if
// the board and turn are unchanged since that read.
func (that *GameRepository) CommitMove(ctx context.Context, gameID string, move entity.Move) (*entity.Game, error) {
	for range maxCommitRetries {
		current, err := that.GetByID(ctx, gameID)
		if err != nil {
			return nil, fmt.Errorf("failed to commit move: %w", err)
		}

		next := current.Clone()
		if err = next.ApplyMove(move); err != nil {
			return nil, fmt.Errorf("failed to commit move: %w", err)
		}

		filter := bson.M{
			"_id":       gameID,
			"board":     current.Board,
			"turn_mark": current.TurnMark,
		}
		update := bson.M{"$set": bson.M{
			"board":     next.Board,
			"turn_mark": next.TurnMark,
		}}

		result, err := that.collection.UpdateOne(ctx, filter, update)
		if err != nil {
			return nil, fmt.Errorf("failed to commit move: %w", err)
		}

		if result.MatchedCount == 1 {
			return next, nil
		}
	}

	return nil, fmt.Errorf("failed to commit move: %w", apperror.ErrConcurrentUpdate)
}

func (that *GameRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := that.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete game by ID: %w", err)
	}

	return nil
}

// DeletePending removes the game only while its second slot is still open.
func (that *GameRepository) DeletePending(ctx context.Context, id string) (bool, error) {
	result, err := that.collection.DeleteOne(ctx, bson.M{"_id": id, "second_player_id": ""})
	if err != nil {
		return false, fmt.Errorf("failed to delete pending game: %w", err)
	}

	return result.DeletedCount == 1, nil
}

// Subscribe opens a change stream filtered to one document. Requires a replica set.
func (that *GameRepository) Subscribe(ctx context.Context, id string) (entity.Feed, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	stream, err := that.collection.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to watch game: %w", err)
	}

	return newFeed(stream), nil
}
