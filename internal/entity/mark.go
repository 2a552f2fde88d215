package entity

import (
	"errors"
	"fmt"
)

// Mark is the content of a single board cell.
type Mark uint8

const (
	Empty Mark = iota
	First
	Second
)

const (
	symbolEmpty  = ""
	symbolFirst  = "X"
	symbolSecond = "O"
)

var ErrUnknownMark = errors.New("unknown mark")

func (that Mark) String() string {
	switch that {
	case First:
		return symbolFirst
	case Second:
		return symbolSecond
	default:
		return symbolEmpty
	}
}

// Opponent returns the complementary mark. Empty has no opponent.
func (that Mark) Opponent() Mark {
	switch that {
	case First:
		return Second
	case Second:
		return First
	default:
		return Empty
	}
}

func (that Mark) IsEmpty() bool {
	return that == Empty
}

func (that Mark) MarshalText() ([]byte, error) {
	return []byte(that.String()), nil
}

func (that *Mark) UnmarshalText(text []byte) error {
	switch string(text) {
	case symbolEmpty:
		*that = Empty
	case symbolFirst:
		*that = First
	case symbolSecond:
		*that = Second
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMark, text)
	}

	return nil
}

// MarkFor returns the mark owned by the creator (First) or the joiner (Second).
func MarkFor(isFirstPlayer bool) Mark {
	if isFirstPlayer {
		return First
	}
	return Second
}
