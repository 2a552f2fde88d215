package matchmaking

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
)

type slotClaimer interface {
	ClaimSecondSlot(ctx context.Context, gameID, playerID string) (bool, error)
}

// Coordinator assigns the second slot of a game exactly once. It must run next to the
// store: clients cannot perform the emptiness check and the write atomically themselves.
type Coordinator struct {
	logger *zap.Logger
	games  slotClaimer
}

func NewCoordinator(logger *zap.Logger, games slotClaimer) *Coordinator {
	return &Coordinator{
		logger: logger,
		games:  games,
	}
}

// TryJoin reports whether playerID now holds the second slot of gameID.
// A lost race or a vanished game is a plain false, not an error.
func (that *Coordinator) TryJoin(ctx context.Context, gameID, playerID string) (bool, error) {
	log := that.logger.With(zap.String("method", "TryJoin"), zap.String("game_id", gameID), zap.String("player_id", playerID))

	if gameID == "" || playerID == "" {
		return false, fmt.Errorf("%w: game and player ids are required", apperror.ErrInvalidArgs)
	}

	joined, err := that.games.ClaimSecondSlot(ctx, gameID, playerID)
	if err != nil {
		log.Error("failed to claim slot", zap.Error(err))
		return false, fmt.Errorf("failed to join game: %w", err)
	}

	log.Debug("join attempt finished", zap.Bool("joined", joined))

	return joined, nil
}
