package replicator

import (
	"time"

	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/sudoku"
)

// boardState is the reconcilable part of a match.
type boardState struct {
	board      domain.Grid
	errors     [2]int
	hints      [2]int
	solved     [2]int
	lastMoveAt time.Time
	lastMoveBy int
	writeIDs   [2]string
}

type move struct {
	row, col, value int
	hint            bool
	player          int
	at              time.Time
}

type cell struct{ row, col int }

func stateOf(m *domain.Match) boardState {
	return boardState{
		board:      boardcodec.ToGrid(m.State.Board),
		errors:     m.State.ErrorsRemaining,
		hints:      m.State.HintsRemaining,
		solved:     m.State.CellsSolved,
		lastMoveAt: m.State.LastMoveAt,
		lastMoveBy: m.State.LastMoveBy,
		writeIDs:   m.State.WriteIDs,
	}
}

func (st boardState) gameState() domain.GameState {
	return domain.GameState{
		Board:           boardcodec.ToWire(st.board),
		ErrorsRemaining: st.errors,
		HintsRemaining:  st.hints,
		CellsSolved:     st.solved,
		LastMoveAt:      st.lastMoveAt,
		LastMoveBy:      st.lastMoveBy,
		WriteIDs:        st.writeIDs,
	}
}

func apply(st *boardState, mv move, solution *domain.Grid) {
	idx := mv.player - 1
	want := solution[mv.row][mv.col]
	if mv.hint {
		st.board[mv.row][mv.col] = want
		if st.hints[idx] > 0 {
			st.hints[idx]--
		}
	} else {
		st.board[mv.row][mv.col] = mv.value
		switch {
		case mv.value == 0:
		case mv.value == want:
			st.solved[idx]++
		case st.errors[idx] > 0:
			st.errors[idx]--
		}
	}
	st.lastMoveAt = mv.at
	st.lastMoveBy = mv.player
}

func replay(base boardState, moves []move, solution *domain.Grid) boardState {
	st := base
	for _, mv := range moves {
		apply(&st, mv, solution)
	}
	return st
}

// finalValues maps each touched cell to the value the pending moves leave in it.
func finalValues(moves []move, solution *domain.Grid) map[cell]int {
	out := make(map[cell]int, len(moves))
	for _, mv := range moves {
		v := mv.value
		if mv.hint {
			v = solution[mv.row][mv.col]
		}
		out[cell{mv.row, mv.col}] = v
	}
	return out
}

// conflicting reports whether the snapshot changed a pending cell to a value
// other than the one we are writing there.
func conflicting(base, snap domain.Grid, moves []move, solution *domain.Grid) bool {
	for c, v := range finalValues(moves, solution) {
		if snap[c.row][c.col] != base[c.row][c.col] && snap[c.row][c.col] != v {
			return true
		}
	}
	return false
}

// dropAbsorbed removes unwritten moves whose cell the other player already set
// to our value.
func dropAbsorbed(base, snap domain.Grid, moves []move, solution *domain.Grid) []move {
	absorbed := make(map[cell]bool)
	for c, v := range finalValues(moves, solution) {
		if snap[c.row][c.col] != base[c.row][c.col] && snap[c.row][c.col] == v {
			absorbed[c] = true
		}
	}
	if len(absorbed) == 0 {
		return moves
	}
	out := moves[:0:0]
	for _, mv := range moves {
		if !absorbed[cell{mv.row, mv.col}] {
			out = append(out, mv)
		}
	}
	return out
}

// confirms reports whether snap looks like the echo of the state we wrote. It is
// only consulted when the remote does not echo write ids.
func confirms(wrote, snap boardState, tolerance time.Duration) bool {
	if wrote.board != snap.board || wrote.errors != snap.errors || wrote.hints != snap.hints {
		return false
	}
	d := wrote.lastMoveAt.Sub(snap.lastMoveAt)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// decide returns the outcome once a player is out of errors or the board is solved.
func decide(st boardState, solution *domain.Grid) (winner int, reason domain.Reason, done bool) {
	out1, out2 := st.errors[0] <= 0, st.errors[1] <= 0
	switch {
	case out1 && out2:
		return other(st.lastMoveBy), domain.ReasonErrors, true
	case out1:
		return 2, domain.ReasonErrors, true
	case out2:
		return 1, domain.ReasonErrors, true
	}
	if !sudoku.IsSolved(&st.board, solution) {
		return 0, "", false
	}
	switch {
	case st.solved[0] > st.solved[1]:
		return 1, domain.ReasonCompletion, true
	case st.solved[1] > st.solved[0]:
		return 2, domain.ReasonCompletion, true
	case st.errors[0] > st.errors[1]:
		return 1, domain.ReasonCompletion, true
	case st.errors[1] > st.errors[0]:
		return 2, domain.ReasonCompletion, true
	}
	if st.lastMoveBy == 2 {
		return 2, domain.ReasonCompletion, true
	}
	return 1, domain.ReasonCompletion, true
}

func other(player int) int {
	if player == 1 {
		return 2
	}
	return 1
}
