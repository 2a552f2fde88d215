package apperror

import "errors"

var (
	ErrGameFinished      = errors.New("game is already finished")
	ErrGameIsNotStarted  = errors.New("game is not started")
	ErrGameNotFound      = errors.New("game not found")
	ErrGameAlreadyExists = errors.New("game already exists")
	ErrNotYourTurn       = errors.New("it's not your turn")
	ErrNotAPlayer        = errors.New("player is not part of the game")
	ErrNoPendingGames    = errors.New("no pending games")
	ErrCellOccupied      = errors.New("cell is already occupied")
	ErrConcurrentUpdate  = errors.New("game was modified concurrently")
	ErrInvalidArgs       = errors.New("invalid arguments")
)
