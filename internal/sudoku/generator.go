package sudoku

import (
	"math/rand"

	"github.com/park285/sudoku-duo/internal/domain"
)

// CellsToRemove is the number of cleared cells per difficulty.
func CellsToRemove(d domain.Difficulty) int {
	switch d {
	case domain.DifficultyEasy:
		return 40
	case domain.DifficultyHard:
		return 55
	case domain.DifficultyExpert:
		return 60
	default:
		return 50
	}
}

// Generate builds a random full solution and clears cells for the difficulty.
func Generate(rng *rand.Rand, d domain.Difficulty) (puzzle, solution domain.Grid) {
	fillRandom(rng, &solution)
	puzzle = solution

	positions := rng.Perm(81)
	for _, pos := range positions[:CellsToRemove(d)] {
		puzzle[pos/9][pos%9] = 0
	}
	return puzzle, solution
}

func fillRandom(rng *rand.Rand, g *domain.Grid) bool {
	var dfs func(int) bool
	dfs = func(pos int) bool {
		if pos == 81 {
			return true
		}
		r, c := pos/9, pos%9
		for _, i := range rng.Perm(9) {
			v := i + 1
			if Allowed(g, r, c, v) {
				g[r][c] = v
				if dfs(pos + 1) {
					return true
				}
				g[r][c] = 0
			}
		}
		return false
	}
	return dfs(0)
}

// Solve fills the empty cells of g in place by backtracking.
func Solve(g *domain.Grid) bool {
	for pos := 0; pos < 81; pos++ {
		r, c := pos/9, pos%9
		if g[r][c] != 0 {
			continue
		}
		for v := 1; v <= 9; v++ {
			if Allowed(g, r, c, v) {
				g[r][c] = v
				if Solve(g) {
					return true
				}
			}
		}
		g[r][c] = 0
		return false
	}
	return true
}
