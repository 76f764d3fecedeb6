// Package replicator keeps one participant's view of a match in step with the
// shared match document: moves apply locally at once, are written with
// compare-and-set, and are reconciled against every snapshot the remote sends.
package replicator

import (
	"context"
	"errors"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
)

// Remote is the authoritative match document store as seen by one client.
type Remote interface {
	// Subscribe delivers the current document and every later revision until
	// cancel is called. A deleted match is reported as domain.ErrNotFound.
	Subscribe(ctx context.Context, matchID string, onSnapshot func(*domain.Match), onError func(error)) (cancel func(), err error)
	Fetch(ctx context.Context, matchID string) (*domain.Match, error)
	// WriteState fails with domain.ErrVersionConflict unless the stored
	// version equals expectedVersion.
	WriteState(ctx context.Context, matchID string, expectedVersion int64, st domain.GameState) (*domain.Match, error)
	// Complete is idempotent: completing a completed match returns it unchanged.
	Complete(ctx context.Context, matchID string, winner int, reason domain.Reason) (*domain.Match, error)
}

type ConnState int

const (
	Disconnected ConnState = iota
	Syncing
	Synced
)

func (c ConnState) String() string {
	switch c {
	case Syncing:
		return "syncing"
	case Synced:
		return "synced"
	default:
		return "disconnected"
	}
}

var (
	ErrNotReady   = errors.New("match state not loaded yet")
	ErrDetached   = errors.New("session detached")
	ErrMatchOver  = errors.New("match is over")
	ErrOutOfRange = errors.New("cell or digit out of range")
	ErrGivenCell  = errors.New("cell holds a given clue")
	ErrCellLocked = errors.New("cell already solved")
	ErrNoChange   = errors.New("cell already holds that digit")
	ErrEliminated = errors.New("no errors remaining")
	ErrNoHints    = errors.New("no hints remaining")
)

type Options struct {
	// Tolerance bounds the LastMoveAt difference at which a snapshot still
	// counts as the echo of our own write. It only applies to remotes that do
	// not echo write ids.
	Tolerance    time.Duration
	WriteTimeout time.Duration
	Backoff      func(attempt int) time.Duration
	Now          func() time.Time
}

type Option func(*Options)

func WithTolerance(d time.Duration) Option    { return func(o *Options) { o.Tolerance = d } }
func WithWriteTimeout(d time.Duration) Option { return func(o *Options) { o.WriteTimeout = d } }
func WithBackoff(f func(int) time.Duration) Option {
	return func(o *Options) { o.Backoff = f }
}
func WithClock(now func() time.Time) Option { return func(o *Options) { o.Now = now } }

func defaultOptions() Options {
	return Options{
		Tolerance:    2 * time.Second,
		WriteTimeout: 5 * time.Second,
		Backoff:      BackoffDuration,
		Now:          time.Now,
	}
}

// BackoffDuration doubles from 100ms and stops growing after the sixth attempt.
func BackoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	return 100 * time.Millisecond * time.Duration(1<<(attempt-1))
}

// View is a copy of the session's current local state.
type View struct {
	MatchID string
	Player  int
	Status  domain.Status
	Conn    ConnState
	Players [2]domain.Player

	Board    domain.Grid
	Initial  domain.Grid
	Solution domain.Grid

	ErrorsRemaining [2]int
	HintsRemaining  [2]int
	CellsSolved     [2]int
	LastMoveAt      time.Time
	LastMoveBy      int

	Winner  int
	Reason  domain.Reason
	Version int64
	// Pending counts local moves not yet confirmed by the remote.
	Pending int
	// Gone is set once the match document was deleted or never existed.
	Gone bool
}

type Completion struct {
	MatchID string
	Winner  int
	Reason  domain.Reason
	Match   *domain.Match
}
