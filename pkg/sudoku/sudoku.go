// Package sudoku solves Sudoku puzzles by constraint propagation on the dataflow engine.
//
// A board is a collection of candidate cells: every (value, row, column) that may still hold.
// Solve keeps removing the candidates ruled out by a determined cell of the same row, column or
// block until nothing changes. It never guesses, so puzzles that need search stay partially
// solved.
package sudoku

import (
	"cmp"
	"errors"
	"fmt"
	"strings"

	"github.com/l7mp/difflow/pkg/dataflow"
)

// ErrInvalidPuzzle is returned when a puzzle cannot be parsed.
var ErrInvalidPuzzle = errors.New("invalid puzzle")

// Cell is a candidate value for the cell at a row and a column, all counted from 1.
type Cell struct {
	Val, Row, Col uint8
}

// String returns "v@(row,col)".
func (c Cell) String() string { return fmt.Sprintf("%d@(%d,%d)", c.Val, c.Row, c.Col) }

type position struct {
	row, col uint8
}

// Parse converts an 81 character puzzle, read row by row, into candidate cells. Digits are given
// values, '.' and '0' are blanks that get every value as a candidate. Whitespace is ignored.
func Parse(puzzle string) ([]Cell, error) {
	cells := []Cell{}
	i := 0
	for _, ch := range puzzle {
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			continue
		case i >= 81:
			return nil, fmt.Errorf("%w: more than 81 cells", ErrInvalidPuzzle)
		case ch == '.' || ch == '0':
			for v := uint8(1); v <= 9; v++ {
				cells = append(cells, Cell{Val: v, Row: uint8(i/9) + 1, Col: uint8(i%9) + 1})
			}
		case ch >= '1' && ch <= '9':
			cells = append(cells, Cell{Val: uint8(ch - '0'), Row: uint8(i/9) + 1, Col: uint8(i%9) + 1})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at cell %d", ErrInvalidPuzzle, ch, i+1)
		}
		i++
	}
	if i != 81 {
		return nil, fmt.Errorf("%w: expected 81 cells, got %d", ErrInvalidPuzzle, i)
	}
	return cells, nil
}

// Solve removes the candidates that conflict with a determined cell, repeatedly, and returns
// the remaining candidates.
func Solve(cells dataflow.Collection[Cell]) dataflow.Collection[Cell] {
	return dataflow.Iterate(cells, func(_ *dataflow.Scope, board dataflow.Collection[Cell]) dataflow.Collection[Cell] {
		byPosition := dataflow.Map(board, func(c Cell) dataflow.KV[position, uint8] {
			return dataflow.Pair(position{row: c.Row, col: c.Col}, c.Val)
		})
		determined := dataflow.Reduce(byPosition, cmp.Compare[uint8],
			func(_ position, in []dataflow.Weighted[uint8]) []dataflow.Weighted[uint8] {
				if len(in) == 1 {
					return []dataflow.Weighted[uint8]{{Value: in[0].Value, Count: 1}}
				}
				return nil
			})

		excluded := dataflow.FlatMap(determined, exclusions).Distinct()

		candidates := dataflow.Map(board, func(c Cell) dataflow.KV[Cell, dataflow.Unit] {
			return dataflow.KV[Cell, dataflow.Unit]{Key: c}
		})
		return dataflow.Map(dataflow.Antijoin(candidates, excluded), func(kv dataflow.KV[Cell, dataflow.Unit]) Cell {
			return kv.Key
		}).Consolidate()
	})
}

// exclusions lists the candidates ruled out by a determined cell: its value in every other cell
// of its row, its column and its block.
func exclusions(d dataflow.KV[position, uint8]) []Cell {
	row, col, val := d.Key.row, d.Key.col, d.Val
	ret := make([]Cell, 0, 24)
	for i := uint8(1); i <= 9; i++ {
		if i != row {
			ret = append(ret, Cell{Val: val, Row: i, Col: col})
		}
		if i != col {
			ret = append(ret, Cell{Val: val, Row: row, Col: i})
		}
	}
	rowOff, colOff := 1+3*((row-1)/3), 1+3*((col-1)/3)
	for r := rowOff; r < rowOff+3; r++ {
		for c := colOff; c < colOff+3; c++ {
			if r != row || c != col {
				ret = append(ret, Cell{Val: val, Row: r, Col: c})
			}
		}
	}
	return ret
}

// Grid renders a board as nine lines of nine characters. Cells with exactly one candidate show
// the value, the rest show '.'.
func Grid(board *dataflow.ZSet[Cell]) string {
	var grid [9][9]uint8
	var counts [9][9]int
	for _, c := range board.Elements() {
		if c.Row < 1 || c.Row > 9 || c.Col < 1 || c.Col > 9 {
			continue
		}
		grid[c.Row-1][c.Col-1] = c.Val
		counts[c.Row-1][c.Col-1]++
	}

	var b strings.Builder
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if counts[r][c] == 1 {
				b.WriteByte('0' + grid[r][c])
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Solved reports whether every cell of the board has exactly one candidate.
func Solved(board *dataflow.ZSet[Cell]) bool {
	return board.UniqueCount() == 81 && !strings.Contains(Grid(board), ".")
}
