package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
)

func newActiveGame() *Game {
	game := NewGame("123", "p1", First)
	game.SecondPlayerID = "p2"

	return game
}

func TestGame_MarkOf(t *testing.T) {
	game := newActiveGame()

	assert.Equal(t, First, game.MarkOf("p1"))
	assert.Equal(t, Second, game.MarkOf("p2"))
	assert.Equal(t, Empty, game.MarkOf("stranger"))
	assert.Equal(t, Empty, NewGame("1", "p1", First).MarkOf(""))
}

func TestGame_ApplyMove(t *testing.T) {
	t.Run("Successful move", func(t *testing.T) {
		// Given: an active game where it's X's turn
		game := newActiveGame()

		// When: player X makes a valid move
		err := game.ApplyMove(Move{PlayerID: "p1", Row: 0, Column: 0})
		require.NoError(t, err)

		// Then: the board holds X and the turn passes to O
		expected := &Game{
			ID:             "123",
			Board:          Board{First},
			FirstPlayerID:  "p1",
			SecondPlayerID: "p2",
			TurnMark:       Second,
		}
		assert.Equal(t, expected, game)
	})

	t.Run("Error on pending game", func(t *testing.T) {
		// Given: a game without a second player
		game := NewGame("123", "p1", First)

		// When: the creator tries to move
		err := game.ApplyMove(Move{PlayerID: "p1", Row: 0, Column: 0})

		// Then: ErrGameIsNotStarted is returned
		require.ErrorIs(t, err, apperror.ErrGameIsNotStarted)
		assert.True(t, game.Board.IsEmpty())
	})

	t.Run("Error on cell already occupied", func(t *testing.T) {
		// Given: X holds the centre
		game := newActiveGame()
		require.NoError(t, game.ApplyMove(Move{PlayerID: "p1", Row: 1, Column: 1}))

		// When: O tries the same cell
		err := game.ApplyMove(Move{PlayerID: "p2", Row: 1, Column: 1})

		// Then: ErrCellOccupied is returned and the turn stays with O
		require.ErrorIs(t, err, apperror.ErrCellOccupied)
		assert.Equal(t, Second, game.TurnMark)
		assert.Equal(t, First, game.Board[4])
	})

	t.Run("Error on playing out of turn", func(t *testing.T) {
		// Given: it's X's turn
		game := newActiveGame()

		// When: O tries to move
		err := game.ApplyMove(Move{PlayerID: "p2", Row: 0, Column: 1})

		// Then: ErrNotYourTurn is returned
		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.True(t, game.Board.IsEmpty())
	})

	t.Run("Error on stranger", func(t *testing.T) {
		game := newActiveGame()

		err := game.ApplyMove(Move{PlayerID: "p3", Row: 0, Column: 1})

		require.ErrorIs(t, err, apperror.ErrNotAPlayer)
	})

	t.Run("Error on invalid cell", func(t *testing.T) {
		game := newActiveGame()

		err := game.ApplyMove(Move{PlayerID: "p1", Row: 3, Column: 0})

		require.ErrorIs(t, err, ErrInvalidCell)
		assert.Equal(t, First, game.TurnMark)
	})

	t.Run("Error after the game is won", func(t *testing.T) {
		// Given: a game already won by X
		game := newActiveGame()
		game.Board = Board{First, First, First, Second, Second}
		game.TurnMark = Second

		// When: O tries to move
		err := game.ApplyMove(Move{PlayerID: "p2", Row: 2, Column: 2})

		// Then: ErrGameFinished is returned
		require.ErrorIs(t, err, apperror.ErrGameFinished)
	})
}

func TestGame_Clone(t *testing.T) {
	game := newActiveGame()

	clone := game.Clone()
	clone.Board[0] = First

	assert.True(t, game.Board.IsEmpty())
	assert.Nil(t, (*Game)(nil).Clone())
}

func TestGame_Progress(t *testing.T) {
	// Given: a pending game
	game := NewGame("123", "p1", First)
	assert.Equal(t, 0, game.Progress())

	// When: the slot is claimed and a move is applied
	game.SecondPlayerID = "p2"
	require.NoError(t, game.ApplyMove(Move{PlayerID: "p1", Row: 0, Column: 0}))

	// Then: both transitions are counted
	assert.Equal(t, 2, game.Progress())
}
