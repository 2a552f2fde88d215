package service

import (
	"context"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

type gameRepo interface {
	Insert(ctx context.Context, game *entity.Game) (string, error)

	GetByID(ctx context.Context, id string) (*entity.Game, error)
	FindPending(ctx context.Context, excludePlayerID string) (*entity.Game, error)

	ClaimSecondSlot(ctx context.Context, gameID, playerID string) (bool, error)
	CommitMove(ctx context.Context, gameID string, move entity.Move) (*entity.Game, error)

	DeleteByID(ctx context.Context, id string) error
	DeletePending(ctx context.Context, id string) (bool, error)

	Subscribe(ctx context.Context, id string) (entity.Feed, error)
}

// GameService is the store facade shared by sessions and the coordinator.
// It hides which driver backs the records.
type GameService struct {
	gameRepo gameRepo
}

func NewGameService(gameRepo gameRepo) *GameService {
	return &GameService{
		gameRepo: gameRepo,
	}
}

func (that *GameService) Insert(ctx context.Context, game *entity.Game) (string, error) {
	id, err := that.gameRepo.Insert(ctx, game)
	if err != nil {
		return "", fmt.Errorf("failed to create game in storage: %w", err)
	}
	return id, nil
}

func (that *GameService) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	game, err := that.gameRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve game from storage: %w", err)
	}
	return game, nil
}

func (that *GameService) FindPending(ctx context.Context, excludePlayerID string) (*entity.Game, error) {
	game, err := that.gameRepo.FindPending(ctx, excludePlayerID)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve pending game from storage: %w", err)
	}
	return game, nil
}

func (that *GameService) ClaimSecondSlot(ctx context.Context, gameID, playerID string) (bool, error) {
	return that.gameRepo.ClaimSecondSlot(ctx, gameID, playerID)
}

func (that *GameService) CommitMove(ctx context.Context, gameID string, move entity.Move) (*entity.Game, error) {
	game, err := that.gameRepo.CommitMove(ctx, gameID, move)
	if err != nil {
		return nil, fmt.Errorf("failed to update game: %w", err)
	}
	return game, nil
}

func (that *GameService) DeleteByID(ctx context.Context, id string) error {
	if err := that.gameRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}
	return nil
}

func (that *GameService) DeletePending(ctx context.Context, id string) (bool, error) {
	deleted, err := that.gameRepo.DeletePending(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending game: %w", err)
	}
	return deleted, nil
}

func (that *GameService) Subscribe(ctx context.Context, id string) (entity.Feed, error) {
	feed, err := that.gameRepo.Subscribe(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to game: %w", err)
	}
	return feed, nil
}
