package aiopponent

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/sudoku"
)

type fakeTimer struct {
	f       func()
	d       time.Duration
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

// fakeScheduler queues callbacks; the test fires them by hand.
type fakeScheduler struct {
	mu      sync.Mutex
	pending []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{f: f, d: d}
	s.pending = append(s.pending, t)
	return t
}

// fireNext runs the oldest timer, stopped ones included, as a late-firing real timer would.
func (s *fakeScheduler) fireNext() bool {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return false
	}
	t := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()
	t.f()
	return true
}

type table struct {
	mu       sync.Mutex
	board    domain.Grid
	solution domain.Grid
	emitted  []Move
}

func (tb *table) view() (domain.Grid, domain.Grid, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.board, tb.solution, true
}

func (tb *table) emit(mv Move) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.board[mv.Row][mv.Col] = mv.Value
	tb.emitted = append(tb.emitted, mv)
	return nil
}

func newTable(seed int64, d domain.Difficulty) *table {
	puzzle, solution := sudoku.Generate(rand.New(rand.NewSource(seed)), d)
	return &table{board: puzzle, solution: solution}
}

func TestControllerSolvesBoardAndStops(t *testing.T) {
	tb := newTable(11, domain.DifficultyMedium)
	sched := &fakeScheduler{}
	p := Preset("balanced")
	p.ErrorRate = 0

	var states []State
	c := NewController(p, tb.view, tb.emit,
		WithScheduler(sched),
		WithRand(rand.New(rand.NewSource(5))),
		WithStateCallback(func(s State) { states = append(states, s) }),
	)
	c.Start()

	cycles := 0
	for sched.fireNext() {
		cycles++
		if cycles > 81 {
			t.Fatalf("controller did not terminate within 81 cycles")
		}
	}

	select {
	case <-c.Done():
	default:
		t.Fatalf("Done not closed after board filled")
	}
	if c.State() != StateIdle {
		t.Fatalf("final state = %v, want idle", c.State())
	}
	if tb.board != tb.solution {
		t.Fatalf("board not solved after %d moves", c.Moves())
	}
	if c.Moves() != 50 {
		t.Fatalf("expected 50 moves for medium puzzle, got %d", c.Moves())
	}
	if len(states) < 3 || states[0] != StateThinking {
		t.Fatalf("unexpected state sequence start: %v", states)
	}
}

func TestControllerResetCancelsPendingMove(t *testing.T) {
	tb := newTable(12, domain.DifficultyEasy)
	sched := &fakeScheduler{}
	c := NewController(Preset("speedster"), tb.view, tb.emit, WithScheduler(sched), WithRand(rand.New(rand.NewSource(1))))
	c.Start()
	if len(sched.pending) != 1 {
		t.Fatalf("expected one scheduled move, got %d", len(sched.pending))
	}
	c.Reset()
	if !sched.pending[0].stopped {
		t.Fatalf("pending timer not stopped")
	}
	// a timer that already fired concurrently must still be ignored
	sched.fireNext()
	if len(tb.emitted) != 0 {
		t.Fatalf("emission after reset: %v", tb.emitted)
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("Done not closed after reset")
	}
	c.Start()
	if len(sched.pending) != 0 {
		t.Fatalf("restart after reset should be a no-op")
	}
}

func TestControllerStopsWhenEmitterFails(t *testing.T) {
	tb := newTable(13, domain.DifficultyEasy)
	sched := &fakeScheduler{}
	calls := 0
	emit := func(Move) error {
		calls++
		return errors.New("match over")
	}
	c := NewController(Preset("balanced"), tb.view, emit, WithScheduler(sched), WithRand(rand.New(rand.NewSource(2))))
	c.Start()
	for sched.fireNext() {
	}
	if calls != 1 {
		t.Fatalf("expected exactly one emit attempt, got %d", calls)
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("controller still running")
	}
}

func TestControllerReplansWhenCellTaken(t *testing.T) {
	tb := newTable(14, domain.DifficultyEasy)
	sched := &fakeScheduler{}
	p := Preset("balanced")
	p.ErrorRate = 0
	c := NewController(p, tb.view, tb.emit, WithScheduler(sched), WithRand(rand.New(rand.NewSource(3))))
	c.Start()

	// fill every empty cell but one before the first timer fires
	var lastR, lastC int
	tb.mu.Lock()
	for r := 0; r < 9; r++ {
		for col := 0; col < 9; col++ {
			if tb.board[r][col] == 0 {
				tb.board[r][col] = tb.solution[r][col]
				lastR, lastC = r, col
			}
		}
	}
	tb.board[lastR][lastC] = 0
	tb.mu.Unlock()

	for sched.fireNext() {
	}
	if tb.board != tb.solution {
		t.Fatalf("board not completed")
	}
	if len(tb.emitted) > 1 {
		t.Fatalf("expected at most one emitted move, got %d", len(tb.emitted))
	}
}

func TestControllerStopsWhenViewClosed(t *testing.T) {
	sched := &fakeScheduler{}
	view := func() (domain.Grid, domain.Grid, bool) { return domain.Grid{}, domain.Grid{}, false }
	c := NewController(Preset("balanced"), view, func(Move) error { return nil }, WithScheduler(sched))
	c.Start()
	if len(sched.pending) != 0 {
		t.Fatalf("nothing should be scheduled")
	}
	select {
	case <-c.Done():
	default:
		t.Fatalf("Done should be closed")
	}
}
