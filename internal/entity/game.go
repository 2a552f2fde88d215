package entity

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-matchmaking/internal/apperror"
)

// Game is the authoritative record of one match as kept by the store.
// An empty SecondPlayerID means the second slot is still open.
type Game struct {
	ID             string `json:"id" bson:"_id"`
	Board          Board  `json:"board" bson:"board"`
	FirstPlayerID  string `json:"first_player_id" bson:"first_player_id"`
	SecondPlayerID string `json:"second_player_id" bson:"second_player_id"`
	TurnMark       Mark   `json:"turn_mark" bson:"turn_mark"`
}

// Move is a request by a player to place its mark.
type Move struct {
	PlayerID string `json:"player_id"`
	Row      int    `json:"row"`
	Column   int    `json:"column"`
}

func NewGame(id, firstPlayerID string, turn Mark) *Game {
	return &Game{
		ID:            id,
		Board:         Board{},
		FirstPlayerID: firstPlayerID,
		TurnMark:      turn,
	}
}

func (that *Game) IsPending() bool {
	return that.SecondPlayerID == ""
}

func (that *Game) IsConcluded() bool {
	return that.Board.Concluded()
}

// MarkOf returns the mark held by playerID in this game, or Empty.
func (that *Game) MarkOf(playerID string) Mark {
	switch {
	case playerID == "":
		return Empty
	case playerID == that.FirstPlayerID:
		return First
	case playerID == that.SecondPlayerID:
		return Second
	default:
		return Empty
	}
}

// ApplyMove validates move against the record and, when valid, places the mark and
// passes the turn to the opponent. The record is left untouched on error.
func (that *Game) ApplyMove(move Move) error {
	if that.IsPending() {
		return apperror.ErrGameIsNotStarted
	}

	if that.IsConcluded() {
		return apperror.ErrGameFinished
	}

	mark := that.MarkOf(move.PlayerID)
	if mark.IsEmpty() {
		return fmt.Errorf("%w: player %s", apperror.ErrNotAPlayer, move.PlayerID)
	}

	if that.TurnMark != mark {
		return apperror.ErrNotYourTurn
	}

	current, err := that.Board.Get(move.Row, move.Column)
	if err != nil {
		return err
	}

	if !current.IsEmpty() {
		return apperror.ErrCellOccupied
	}

	board, err := that.Board.Set(move.Row, move.Column, mark)
	if err != nil {
		return err
	}

	that.Board = board
	that.TurnMark = mark.Opponent()

	return nil
}

// Clone returns a copy that can be mutated independently.
func (that *Game) Clone() *Game {
	if that == nil {
		return nil
	}

	clone := *that
	return &clone
}

// Progress counts the transitions a record went through: the slot claim and every move.
// It only grows, so a lower value marks a stale copy of the record.
func (that *Game) Progress() int {
	progress := CellCount - len(that.Board.EmptyCells())
	if !that.IsPending() {
		progress++
	}

	return progress
}
