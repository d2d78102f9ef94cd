package game

import (
	"encoding/json"
	"strconv"
)

// Mark identifies who owns a cell, a turn or a win.
type Mark int8

const (
	NoMark   Mark = -1
	Host     Mark = 0
	Opponent Mark = 1
)

// Other returns the opposing player's mark.
func (m Mark) Other() Mark {
	switch m {
	case Host:
		return Opponent
	case Opponent:
		return Host
	}
	return NoMark
}

// MarshalJSON encodes NoMark as null so an empty cell or a draw reads naturally.
func (m Mark) MarshalJSON() ([]byte, error) {
	if m == NoMark {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, int64(m), 10), nil
}

// axes are the four scan directions: vertical, horizontal, diagonal, anti-diagonal.
var axes = [4][2]int{{1, 0}, {0, 1}, {1, 1}, {1, -1}}

// Board is a square grid of marks stored row-major.
type Board struct {
	size  int
	cells []Mark
}

func newBoard(size int) Board {
	cells := make([]Mark, size*size)
	for i := range cells {
		cells[i] = NoMark
	}
	return Board{size: size, cells: cells}
}

// Size returns the side length.
func (b Board) Size() int { return b.size }

// At returns the mark at (row, column). Out-of-range coordinates read as NoMark.
func (b Board) At(row, column int) Mark {
	if !b.inRange(row, column) {
		return NoMark
	}
	return b.cells[row*b.size+column]
}

// Rows returns the board as a fresh slice of rows.
func (b Board) Rows() [][]Mark {
	rows := make([][]Mark, b.size)
	for r := range rows {
		rows[r] = append([]Mark(nil), b.cells[r*b.size:(r+1)*b.size]...)
	}
	return rows
}

func (b Board) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Rows())
}

func (b Board) clone() Board {
	return Board{size: b.size, cells: append([]Mark(nil), b.cells...)}
}

func (b Board) inRange(row, column int) bool {
	return row >= 0 && row < b.size && column >= 0 && column < b.size
}

func (b Board) set(row, column int, m Mark) {
	b.cells[row*b.size+column] = m
}

// longestRun returns the longest line of same marks passing through
// (row, column) along any axis. The walk stops at the board edge.
func (b Board) longestRun(row, column int) int {
	m := b.At(row, column)
	if m == NoMark {
		return 0
	}
	best := 0
	for _, d := range axes {
		n := 1 + b.walk(row, column, d[0], d[1], m) + b.walk(row, column, -d[0], -d[1], m)
		if n > best {
			best = n
		}
	}
	return best
}

func (b Board) walk(row, column, dr, dc int, m Mark) int {
	n := 0
	for r, c := row+dr, column+dc; b.inRange(r, c) && b.cells[r*b.size+c] == m; r, c = r+dr, c+dc {
		n++
	}
	return n
}
