package service

import (
	"errors"
	"math/rand/v2"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

var ErrNoAvailableMoves = errors.New("no available moves")

// MovePicker chooses moves for headless players.
type MovePicker struct {
	rand *rand.Rand
}

func NewMovePicker(source *rand.Rand) *MovePicker {
	if source == nil {
		source = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint: gosec // it's ok
	}

	return &MovePicker{rand: source}
}

// Pick returns the row and column of a random empty cell.
func (that *MovePicker) Pick(board entity.Board) (int, int, error) {
	availableCells := board.EmptyCells()
	if len(availableCells) == 0 {
		return 0, 0, ErrNoAvailableMoves
	}

	row, column := entity.CellPosition(availableCells[that.rand.IntN(len(availableCells))])

	return row, column, nil
}
