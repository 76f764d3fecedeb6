// Package boardcodec converts boards between the dense grid and the row-keyed
// wire map kept in the match document.
package boardcodec

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"go.uber.org/zap"
)

const size = 9

var ErrMalformedBoard = errors.New("malformed board")

// ToGrid decodes a wire board. A missing or malformed row decodes as nine zeros.
func ToGrid(w domain.WireBoard) domain.Grid {
	var g domain.Grid
	for r := 0; r < size; r++ {
		row, ok := w[rowKey(r)]
		if !ok || !wellFormed(row) {
			if ok {
				obslog.L().Debug("board_row_malformed", zap.Int("row", r), zap.Int("len", len(row)))
			}
			continue
		}
		copy(g[r][:], row)
	}
	return g
}

// ToWire encodes a grid with fresh row slices.
func ToWire(g domain.Grid) domain.WireBoard {
	w := make(domain.WireBoard, size)
	for r := 0; r < size; r++ {
		row := make([]int, size)
		copy(row, g[r][:])
		w[rowKey(r)] = row
	}
	return w
}

// Validate is the strict counterpart of ToGrid for untrusted writes.
func Validate(w domain.WireBoard) error {
	if len(w) != size {
		return fmt.Errorf("%w: %d rows", ErrMalformedBoard, len(w))
	}
	for r := 0; r < size; r++ {
		row, ok := w[rowKey(r)]
		if !ok {
			return fmt.Errorf("%w: row %d missing", ErrMalformedBoard, r)
		}
		if !wellFormed(row) {
			return fmt.Errorf("%w: row %d", ErrMalformedBoard, r)
		}
	}
	return nil
}

func wellFormed(row []int) bool {
	if len(row) != size {
		return false
	}
	for _, v := range row {
		if v < 0 || v > 9 {
			return false
		}
	}
	return true
}

func rowKey(r int) string { return strconv.Itoa(r) }
