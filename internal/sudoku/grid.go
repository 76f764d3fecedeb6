// Package sudoku holds puzzle generation and the board rules shared by the
// replicator and the AI opponent.
package sudoku

import "github.com/park285/sudoku-duo/internal/domain"

// Allowed reports whether v can be placed at (r, c) without a row, column or box clash.
// The cell itself is ignored.
func Allowed(g *domain.Grid, r, c, v int) bool {
	for i := 0; i < 9; i++ {
		if i != c && g[r][i] == v {
			return false
		}
		if i != r && g[i][c] == v {
			return false
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			rr, cc := br+dr, bc+dc
			if (rr != r || cc != c) && g[rr][cc] == v {
				return false
			}
		}
	}
	return true
}

// Candidates lists the digits that fit an empty cell.
func Candidates(g *domain.Grid, r, c int) []int {
	out := make([]int, 0, 9)
	for v := 1; v <= 9; v++ {
		if Allowed(g, r, c, v) {
			out = append(out, v)
		}
	}
	return out
}

// FilledNeighbors counts filled cells sharing a row, column or box with (r, c).
// There are 20 such peers.
func FilledNeighbors(g *domain.Grid, r, c int) int {
	n := 0
	for i := 0; i < 9; i++ {
		if i != c && g[r][i] != 0 {
			n++
		}
		if i != r && g[i][c] != 0 {
			n++
		}
	}
	br, bc := (r/3)*3, (c/3)*3
	for dr := 0; dr < 3; dr++ {
		for dc := 0; dc < 3; dc++ {
			rr, cc := br+dr, bc+dc
			if rr != r && cc != c && g[rr][cc] != 0 {
				n++
			}
		}
	}
	return n
}

// IsSolved reports whether the board matches the solution in every cell.
func IsSolved(board, solution *domain.Grid) bool {
	return *board == *solution
}

// CountCorrect counts cells equal to the solution.
func CountCorrect(board, solution *domain.Grid) int {
	n := 0
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if board[r][c] != 0 && board[r][c] == solution[r][c] {
				n++
			}
		}
	}
	return n
}
