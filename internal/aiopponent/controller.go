package aiopponent

import (
	"math/rand"
	"sync"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"go.uber.org/zap"
)

type State int

const (
	StateIdle State = iota
	StateThinking
	StateMoving
)

func (s State) String() string {
	switch s {
	case StateThinking:
		return "thinking"
	case StateMoving:
		return "moving"
	default:
		return "idle"
	}
}

// BoardView reads the board the AI plays on. ok=false means the match is no longer playable.
type BoardView func() (board, solution domain.Grid, ok bool)

// Emitter delivers a move through the same path a human move takes.
// A non-nil error stops the controller.
type Emitter func(Move) error

// Timer is the cancellable handle returned by a Scheduler.
type Timer interface {
	Stop() bool
}

type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type Option func(*Controller)

func WithScheduler(s Scheduler) Option { return func(c *Controller) { c.sched = s } }
func WithRand(r *rand.Rand) Option     { return func(c *Controller) { c.rng = r } }
func WithTiming(t Timing) Option       { return func(c *Controller) { c.timing = t } }

// WithStateCallback observes state transitions. The callback runs under the
// controller lock and must not call back into the controller.
func WithStateCallback(cb func(State)) Option { return func(c *Controller) { c.onState = cb } }

// Controller drives the idle → thinking → moving cycle of one AI seat.
type Controller struct {
	mu      sync.Mutex
	profile Profile
	view    BoardView
	emit    Emitter
	sched   Scheduler
	rng     *rand.Rand
	timing  Timing
	onState func(State)

	state   State
	running bool
	gen     uint64
	timer   Timer
	moves   int
	done    chan struct{}
}

func NewController(p Profile, view BoardView, emit Emitter, opts ...Option) *Controller {
	c := &Controller{
		profile: p,
		view:    view,
		emit:    emit,
		sched:   realScheduler{},
		timing:  DefaultTiming(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return c
}

// Start begins playing. Calling Start on a running or finished controller is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.isDone() {
		return
	}
	c.running = true
	c.planLocked()
}

// Reset cancels any pending move. No emission happens after Reset returns.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finishLocked("reset")
}

// Done is closed when the controller stops for any reason.
func (c *Controller) Done() <-chan struct{} { return c.done }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Moves counts emitted moves.
func (c *Controller) Moves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.moves
}

func (c *Controller) planLocked() {
	c.setStateLocked(StateThinking)
	board, solution, ok := c.view()
	if !ok {
		c.finishLocked("match_over")
		return
	}
	mv, ok := PlanMove(&board, &solution, c.profile, c.timing, c.rng)
	if !ok {
		c.finishLocked("board_filled")
		return
	}
	gen := c.gen
	c.timer = c.sched.AfterFunc(mv.Delay, func() { c.fire(gen, mv) })
}

func (c *Controller) fire(gen uint64, mv Move) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || gen != c.gen {
		return
	}
	c.timer = nil

	board, solution, ok := c.view()
	if !ok {
		c.finishLocked("match_over")
		return
	}
	if board[mv.Row][mv.Col] == solution[mv.Row][mv.Col] {
		// the other player got there first
		c.planLocked()
		return
	}

	c.setStateLocked(StateMoving)
	if err := c.emit(mv); err != nil {
		obslog.L().Info("ai_emit_stopped", zap.Error(err), zap.Int("moves", c.moves))
		c.finishLocked("emit_failed")
		return
	}
	c.moves++
	c.setStateLocked(StateIdle)
	c.planLocked()
}

func (c *Controller) finishLocked(reason string) {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	wasRunning := c.running
	c.running = false
	c.setStateLocked(StateIdle)
	if !c.isDone() {
		close(c.done)
		if wasRunning {
			obslog.L().Debug("ai_controller_stop", zap.String("reason", reason), zap.Int("moves", c.moves))
		}
	}
}

func (c *Controller) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.onState != nil {
		c.onState(s)
	}
}
