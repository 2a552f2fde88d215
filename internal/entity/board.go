package entity

import (
	"errors"
	"fmt"
)

const (
	Rows    = 3
	Columns = 3

	CellCount = Rows * Columns
)

var ErrInvalidCell = errors.New("invalid cell index")

// Line is a set of three cell indexes that wins when they hold the same mark.
type Line [3]int

// WinLines lists every winning line in scan order: both diagonals, then rows, then columns.
// The first complete line found is the one reported as the winning line.
var WinLines = [...]Line{
	{0, 4, 8},
	{2, 4, 6},
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
}

// Board is a row-major 3x3 grid. It is a value: Set returns a new board.
// Winner and winning line are derived from the cells on every call.
type Board [CellCount]Mark

// Outcome is the derived result of a board.
type Outcome struct {
	Winner Mark
	Line   *Line
	Draw   bool
}

// DisplayCell annotates one cell for presentation.
type DisplayCell struct {
	Index   int  `json:"index"`
	Content Mark `json:"content"`
	Win     bool `json:"win"`
}

// DisplayRow is one row of the display model.
type DisplayRow struct {
	Index int                  `json:"index"`
	Cells [Columns]DisplayCell `json:"content"`
}

// CellIndex converts row/column coordinates into a board index.
func CellIndex(row, column int) (int, error) {
	if row < 0 || row >= Rows || column < 0 || column >= Columns {
		return 0, fmt.Errorf("%w: row %d, column %d", ErrInvalidCell, row, column)
	}

	return row*Columns + column, nil
}

// CellPosition converts a board index into row/column coordinates.
func CellPosition(index int) (int, int) {
	return index / Columns, index % Columns
}

// Set places mark at row/column and returns the resulting board.
// The previous content of the cell is overwritten.
func (that Board) Set(row, column int, mark Mark) (Board, error) {
	index, err := CellIndex(row, column)
	if err != nil {
		return that, err
	}

	that[index] = mark

	return that, nil
}

func (that Board) Get(row, column int) (Mark, error) {
	index, err := CellIndex(row, column)
	if err != nil {
		return Empty, err
	}

	return that[index], nil
}

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell.IsEmpty() {
			return false
		}
	}

	return true
}

func (that Board) IsEmpty() bool {
	return that == Board{}
}

// EmptyCells returns the indexes of all free cells in ascending order.
func (that Board) EmptyCells() []int {
	cells := make([]int, 0, CellCount)
	for i, cell := range that {
		if cell.IsEmpty() {
			cells = append(cells, i)
		}
	}

	return cells
}

// FindWinner returns the first complete line in WinLines order.
func (that Board) FindWinner() (Line, bool) {
	for _, line := range WinLines {
		a, b, c := that[line[0]], that[line[1]], that[line[2]]
		if !a.IsEmpty() && a == b && b == c {
			return line, true
		}
	}

	return Line{}, false
}

func (that Board) HasWinner() bool {
	_, ok := that.FindWinner()
	return ok
}

// Winner returns the mark on the winning line, or Empty.
func (that Board) Winner() Mark {
	line, ok := that.FindWinner()
	if !ok {
		return Empty
	}

	return that[line[0]]
}

func (that Board) Result() Outcome {
	line, ok := that.FindWinner()
	if ok {
		return Outcome{Winner: that[line[0]], Line: &line}
	}

	return Outcome{Draw: that.IsFull()}
}

// Concluded reports whether no more moves can change the result.
func (that Board) Concluded() bool {
	return that.HasWinner() || that.IsFull()
}

// DisplayModel builds a nested row/cell structure with the winning line flagged.
func (that Board) DisplayModel() [Rows]DisplayRow {
	var model [Rows]DisplayRow

	line, hasWinner := that.FindWinner()

	for i, cell := range that {
		row, column := CellPosition(i)

		model[row].Index = row
		model[row].Cells[column] = DisplayCell{
			Index:   column,
			Content: cell,
			Win:     hasWinner && line.Contains(i),
		}
	}

	return model
}

func (that Line) Contains(index int) bool {
	for _, i := range that {
		if i == index {
			return true
		}
	}

	return false
}
