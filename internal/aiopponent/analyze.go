package aiopponent

import (
	"math/rand"
	"sort"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/sudoku"
)

// Cell is a fillable cell ranked by how hard it looks to a human.
type Cell struct {
	Row        int
	Col        int
	Difficulty float64 // 0 = easiest
	Candidates []int
}

// Move is one planned AI placement.
type Move struct {
	Row     int
	Col     int
	Value   int
	IsError bool
	Delay   time.Duration
}

// Timing shapes the delay before a move lands.
type Timing struct {
	Base          time.Duration
	PerDifficulty time.Duration
	Jitter        time.Duration
	Pause         time.Duration
	Min           time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		Base:          2 * time.Second,
		PerDifficulty: 3 * time.Second,
		Jitter:        500 * time.Millisecond,
		Pause:         3 * time.Second,
		Min:           time.Second,
	}
}

// Analyze lists every cell that is empty or holds a wrong digit, easiest first.
func Analyze(board, solution *domain.Grid) []Cell {
	cells := make([]Cell, 0, 81)
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if board[r][c] == solution[r][c] {
				continue
			}
			cands := sudoku.Candidates(board, r, c)
			n := len(cands)
			if n == 0 {
				n = 1
			}
			possibility := float64(n-1) / 8
			neighbors := 1 - float64(sudoku.FilledNeighbors(board, r, c))/20
			cells = append(cells, Cell{
				Row:        r,
				Col:        c,
				Difficulty: possibility*0.7 + neighbors*0.3,
				Candidates: cands,
			})
		}
	}
	sort.SliceStable(cells, func(i, j int) bool { return cells[i].Difficulty < cells[j].Difficulty })
	return cells
}

// PlanMove picks the next cell and value. ok is false when nothing is left to fill.
func PlanMove(board, solution *domain.Grid, p Profile, t Timing, rng *rand.Rand) (Move, bool) {
	cells := Analyze(board, solution)
	if len(cells) == 0 {
		return Move{}, false
	}

	progress := 1 - float64(len(cells))/81
	easyBias := 0.8 - progress
	if easyBias < 0 {
		easyBias = 0
	}

	var cell Cell
	if rng.Float64() < easyBias {
		pool := int(float64(len(cells)) * 0.3)
		if pool < 1 {
			pool = 1
		}
		cell = cells[rng.Intn(pool)]
	} else {
		cell = weightedPick(cells, rng)
	}

	want := solution[cell.Row][cell.Col]
	mv := Move{Row: cell.Row, Col: cell.Col, Value: want}
	if rng.Float64() < p.ErrorRate {
		wrong := make([]int, 0, len(cell.Candidates))
		for _, v := range cell.Candidates {
			if v != want {
				wrong = append(wrong, v)
			}
		}
		if len(wrong) > 0 {
			mv.Value = wrong[rng.Intn(len(wrong))]
			mv.IsError = true
		}
	}
	mv.Delay = moveDelay(t, p, cell.Difficulty, rng)
	return mv, true
}

// weightedPick favours the head of the list with 1/(i+1) weights.
func weightedPick(cells []Cell, rng *rand.Rand) Cell {
	total := 0.0
	for i := range cells {
		total += 1 / float64(i+1)
	}
	threshold := rng.Float64() * total
	for i := range cells {
		threshold -= 1 / float64(i+1)
		if threshold <= 0 {
			return cells[i]
		}
	}
	return cells[0]
}

func moveDelay(t Timing, p Profile, difficulty float64, rng *rand.Rand) time.Duration {
	speed := p.Speed
	if speed <= 0 {
		speed = minSpeed
	}
	d := float64(t.Base) + difficulty*float64(t.PerDifficulty)
	if t.Jitter > 0 {
		d += (rng.Float64()*2 - 1) * float64(t.Jitter)
	}
	if rng.Float64() < p.PauseChance {
		d += float64(t.Pause)
	}
	out := time.Duration(d / speed)
	if out < t.Min {
		return t.Min
	}
	return out
}
