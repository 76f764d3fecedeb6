package replicator

import (
	"testing"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
)

func TestDecideErrors(t *testing.T) {
	var sol domain.Grid
	st := boardState{errors: [2]int{0, 2}, lastMoveBy: 1}
	if w, r, ok := decide(st, &sol); !ok || w != 2 || r != domain.ReasonErrors {
		t.Fatalf("player 1 out of errors: got %d %s %v", w, r, ok)
	}
	st = boardState{errors: [2]int{0, 0}, lastMoveBy: 2}
	if w, _, ok := decide(st, &sol); !ok || w != 1 {
		t.Fatalf("last mover eliminating itself loses, got winner %d", w)
	}
	st = boardState{errors: [2]int{1, 1}}
	st.board[0][0] = 1
	sol[0][0] = 2
	if _, _, ok := decide(st, &sol); ok {
		t.Fatalf("unsolved board with errors left is not final")
	}
}

func TestDecideSolvedBoard(t *testing.T) {
	var sol domain.Grid
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			sol[r][c] = (r*3+r/3+c)%9 + 1
		}
	}
	st := boardState{board: sol, errors: [2]int{1, 3}, solved: [2]int{20, 20}, lastMoveBy: 1}
	if w, r, ok := decide(st, &sol); !ok || w != 2 || r != domain.ReasonCompletion {
		t.Fatalf("tie on cells should go to more errors left: %d %s %v", w, r, ok)
	}
	st.solved = [2]int{21, 20}
	if w, _, _ := decide(st, &sol); w != 1 {
		t.Fatalf("more cells solved wins, got %d", w)
	}
	st = boardState{board: sol, errors: [2]int{2, 2}, solved: [2]int{10, 10}, lastMoveBy: 2}
	if w, _, _ := decide(st, &sol); w != 2 {
		t.Fatalf("full tie goes to last mover, got %d", w)
	}
}

func TestConflictAndAbsorb(t *testing.T) {
	var base, snap, sol domain.Grid
	sol[0][0], sol[1][1] = 5, 4
	moves := []move{{row: 0, col: 0, value: 5, player: 1}, {row: 1, col: 1, value: 4, player: 1}}

	snap[2][2] = 9
	if conflicting(base, snap, moves, &sol) {
		t.Fatalf("untouched pending cells must not conflict")
	}
	snap[0][0] = 5
	if conflicting(base, snap, moves, &sol) {
		t.Fatalf("same value is not a conflict")
	}
	kept := dropAbsorbed(base, snap, moves, &sol)
	if len(kept) != 1 || kept[0].row != 1 {
		t.Fatalf("absorbed move not dropped: %+v", kept)
	}
	if len(moves) != 2 {
		t.Fatalf("dropAbsorbed mutated its input")
	}
	snap[1][1] = 7
	if !conflicting(base, snap, moves, &sol) {
		t.Fatalf("different value in a pending cell must conflict")
	}
}

func TestConfirmsTolerance(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := boardState{errors: [2]int{3, 3}, lastMoveAt: at}
	b := a
	b.lastMoveAt = at.Add(1500 * time.Millisecond)
	if !confirms(a, b, 2*time.Second) {
		t.Fatalf("1.5s skew should be inside a 2s tolerance")
	}
	b.lastMoveAt = at.Add(-3 * time.Second)
	if confirms(a, b, 2*time.Second) {
		t.Fatalf("3s skew should be outside a 2s tolerance")
	}
	b.lastMoveAt = at
	b.errors[0] = 2
	if confirms(a, b, 2*time.Second) {
		t.Fatalf("different error counts never confirm")
	}
}

func TestApplyCountsErrorsAndHints(t *testing.T) {
	var sol domain.Grid
	sol[0][0], sol[0][1] = 3, 8
	st := boardState{errors: [2]int{1, 3}, hints: [2]int{1, 3}}
	apply(&st, move{row: 0, col: 0, value: 4, player: 1}, &sol)
	apply(&st, move{row: 0, col: 0, value: 5, player: 1}, &sol)
	if st.errors[0] != 0 {
		t.Fatalf("errors should floor at zero, got %d", st.errors[0])
	}
	apply(&st, move{row: 0, col: 1, hint: true, player: 1}, &sol)
	if st.board[0][1] != 8 || st.hints[0] != 0 || st.solved[0] != 0 {
		t.Fatalf("hint should fill the solution without counting a solve: %+v", st)
	}
	apply(&st, move{row: 0, col: 0, value: 3, player: 2}, &sol)
	if st.solved[1] != 1 || st.lastMoveBy != 2 {
		t.Fatalf("correct digit should count for the mover: %+v", st)
	}
}

func TestBackoffDuration(t *testing.T) {
	if BackoffDuration(1) != 100*time.Millisecond || BackoffDuration(3) != 400*time.Millisecond {
		t.Fatalf("unexpected early backoff")
	}
	if BackoffDuration(6) != BackoffDuration(20) {
		t.Fatalf("backoff should stop growing after the sixth attempt")
	}
}
