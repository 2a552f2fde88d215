package service

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/entity"
)

func TestMovePicker_Pick(t *testing.T) {
	t.Run("Picks the only free cell", func(t *testing.T) {
		// Given: a board with one free cell at row 2, column 1
		var board entity.Board
		for i := range board {
			board[i] = entity.First
		}
		board[7] = entity.Empty

		// When: a move is picked
		row, column, err := NewMovePicker(nil).Pick(board)

		// Then: the free cell is returned
		require.NoError(t, err)
		assert.Equal(t, 2, row)
		assert.Equal(t, 1, column)
	})

	t.Run("Always picks a free cell", func(t *testing.T) {
		picker := NewMovePicker(rand.New(rand.NewPCG(1, 2)))

		board := entity.Board{}
		board, err := board.Set(0, 0, entity.First)
		require.NoError(t, err)
		board, err = board.Set(1, 1, entity.Second)
		require.NoError(t, err)

		for range 50 {
			row, column, err := picker.Pick(board)
			require.NoError(t, err)

			cell, err := board.Get(row, column)
			require.NoError(t, err)
			assert.True(t, cell.IsEmpty())
		}
	})

	t.Run("Full board has no moves", func(t *testing.T) {
		var board entity.Board
		for i := range board {
			board[i] = entity.Second
		}

		_, _, err := NewMovePicker(nil).Pick(board)

		require.ErrorIs(t, err, ErrNoAvailableMoves)
	})
}
