package replicator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"go.uber.org/zap"
)

const inboxSize = 64

type write struct {
	id       string
	seq      uint64
	n        int
	state    boardState
	expected int64
}

// Session replicates one participant's view of a match. All reactions run on a
// single loop goroutine, so local moves, snapshots and write results never
// interleave. Callbacks are invoked from that goroutine and must not call
// SubmitMove or UseHint synchronously.
type Session struct {
	remote  Remote
	matchID string
	player  int
	opts    Options
	writer  string

	ctx      context.Context
	cancel   context.CancelFunc
	inbox    chan func()
	done     chan struct{}
	ready    chan struct{}
	readyOne sync.Once
	detached atomic.Bool

	viewM sync.RWMutex
	view  View

	cbM         sync.RWMutex
	nextCB      int
	stateCbs    []stateEntry
	connCbs     []connEntry
	completeCbs []completeEntry

	// loop-owned
	doc         *domain.Match
	initial     domain.Grid
	solution    domain.Grid
	base        boardState
	baseVersion int64
	local       boardState
	pending     []move
	inflight    *write
	seq         uint64
	conn        ConnState
	subCancel   func()
	subGen      int
	attempt     int
	retry       *time.Timer
	completing  bool
	completed   bool
	gone        bool
}

// Attach subscribes to a match as the given player (1 or 2). It returns once the
// subscription is established; Ready closes when the first snapshot has been
// applied. Cancelling ctx detaches the session.
func Attach(ctx context.Context, remote Remote, matchID string, player int, opts ...Option) (*Session, error) {
	if remote == nil {
		return nil, fmt.Errorf("replicator: nil remote")
	}
	if player != 1 && player != 2 {
		return nil, fmt.Errorf("replicator: invalid player number %d", player)
	}
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	s := &Session{
		remote:  remote,
		matchID: matchID,
		player:  player,
		opts:    o,
		writer:  uuid.NewString(),
		inbox:   make(chan func(), inboxSize),
		done:    make(chan struct{}),
		ready:   make(chan struct{}),
		view:    View{MatchID: matchID, Player: player},
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	go s.run()

	errc := make(chan error, 1)
	if !s.post(func() { errc <- s.subscribe() }) {
		return nil, ErrDetached
	}
	select {
	case err := <-errc:
		if err != nil {
			s.Detach()
			return nil, err
		}
	case <-ctx.Done():
		s.Detach()
		return nil, ctx.Err()
	}
	obslog.L().Info("replicator_attach", zap.String("match_id", matchID), zap.Int("player", player))
	return s, nil
}

func (s *Session) MatchID() string { return s.matchID }
func (s *Session) Player() int     { return s.player }

// Ready closes after the first snapshot (or once the match turns out to be gone).
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Done closes when the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns a copy of the latest local state.
func (s *Session) State() View {
	s.viewM.RLock()
	defer s.viewM.RUnlock()
	return s.view
}

// SubmitMove places value (0 erases) at row, col for this session's player.
// The local state reflects the move when SubmitMove returns nil.
func (s *Session) SubmitMove(row, col, value int) error {
	return s.request(move{row: row, col: col, value: value})
}

// UseHint spends a hint to fill the solution digit at row, col.
func (s *Session) UseHint(row, col int) error {
	return s.request(move{row: row, col: col, hint: true})
}

func (s *Session) request(mv move) error {
	if s.detached.Load() {
		return ErrDetached
	}
	reply := make(chan error, 1)
	if !s.post(func() { reply <- s.handleMove(mv) }) {
		return ErrDetached
	}
	select {
	case err := <-reply:
		return err
	case <-s.ctx.Done():
		return ErrDetached
	}
}

// Detach cancels the subscription and timers. No callback starts after Detach
// returns.
func (s *Session) Detach() {
	if !s.detached.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	obslog.L().Info("replicator_detach", zap.String("match_id", s.matchID), zap.Int("player", s.player))
}

func (s *Session) run() {
	defer close(s.done)
	defer s.teardown()
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.inbox:
			if s.ctx.Err() != nil {
				return
			}
			f()
		}
	}
}

func (s *Session) teardown() {
	s.detached.Store(true)
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}
	if s.retry != nil {
		s.retry.Stop()
	}
}

func (s *Session) post(f func()) bool {
	select {
	case s.inbox <- f:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// sync waits until every event queued before it has been handled.
func (s *Session) sync() {
	ch := make(chan struct{})
	if s.post(func() { close(ch) }) {
		select {
		case <-ch:
		case <-s.ctx.Done():
		}
	}
}

func (s *Session) subscribe() error {
	s.setConn(Syncing)
	s.subGen++
	gen := s.subGen
	cancel, err := s.remote.Subscribe(s.ctx, s.matchID,
		func(m *domain.Match) {
			s.post(func() {
				if gen == s.subGen {
					s.handleSnapshot(m)
				}
			})
		},
		func(err error) {
			s.post(func() {
				if gen == s.subGen {
					s.handleListenerError(err)
				}
			})
		},
	)
	if err != nil {
		s.setConn(Disconnected)
		return err
	}
	s.subCancel = cancel
	return nil
}

func (s *Session) dropSubscription() {
	s.subGen++
	if s.subCancel != nil {
		s.subCancel()
		s.subCancel = nil
	}
}

func (s *Session) handleListenerError(err error) {
	s.dropSubscription()
	if errors.Is(err, domain.ErrNotFound) {
		s.markGone()
		return
	}
	obslog.L().Warn("replicator_listener_error", zap.String("match_id", s.matchID), zap.Error(err))
	s.setConn(Disconnected)
	s.scheduleReconnect()
}

func (s *Session) markGone() {
	s.gone = true
	s.pending = nil
	s.inflight = nil
	s.setConn(Disconnected)
	s.markReady()
	s.emitState()
	obslog.L().Info("replicator_match_gone", zap.String("match_id", s.matchID))
}

func (s *Session) scheduleReconnect() {
	if s.gone || s.ctx.Err() != nil {
		return
	}
	if s.retry != nil {
		s.retry.Stop()
	}
	s.attempt++
	d := s.opts.Backoff(s.attempt)
	s.retry = time.AfterFunc(d, func() { s.post(s.reconnect) })
}

func (s *Session) reconnect() {
	if s.gone || s.conn != Disconnected {
		return
	}
	if err := s.subscribe(); err != nil {
		obslog.L().Warn("replicator_reconnect_error",
			zap.String("match_id", s.matchID),
			zap.Int("attempt", s.attempt),
			zap.Error(err),
		)
		s.scheduleReconnect()
	}
}

func (s *Session) refetch() {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
		m, err := s.remote.Fetch(ctx, s.matchID)
		cancel()
		switch {
		case err == nil:
			s.post(func() { s.handleSnapshot(m) })
		case errors.Is(err, domain.ErrNotFound):
			s.post(s.markGone)
		default:
			obslog.L().Warn("replicator_refetch_error", zap.String("match_id", s.matchID), zap.Error(err))
		}
	}()
}

func (s *Session) handleMove(mv move) error {
	switch {
	case s.gone:
		return domain.ErrNotFound
	case s.doc == nil:
		return ErrNotReady
	case s.completed || s.completing || s.doc.Status == domain.StatusCompleted:
		return ErrMatchOver
	case s.doc.Status != domain.StatusActive:
		return domain.ErrNotActive
	}
	if mv.row < 0 || mv.row > 8 || mv.col < 0 || mv.col > 8 || mv.value < 0 || mv.value > 9 {
		return ErrOutOfRange
	}
	if s.initial[mv.row][mv.col] != 0 {
		return ErrGivenCell
	}
	idx := s.player - 1
	cur := s.local.board[mv.row][mv.col]
	if cur != 0 && cur == s.solution[mv.row][mv.col] {
		return ErrCellLocked
	}
	if s.local.errors[idx] <= 0 {
		return ErrEliminated
	}
	if mv.hint {
		if s.local.hints[idx] <= 0 {
			return ErrNoHints
		}
	} else if mv.value == cur {
		return ErrNoChange
	}

	mv.player = s.player
	mv.at = s.opts.Now()
	apply(&s.local, mv, &s.solution)
	s.pending = append(s.pending, mv)
	s.emitState()
	s.flush()
	return nil
}

func (s *Session) flush() {
	if s.inflight != nil || len(s.pending) == 0 || s.conn != Synced || s.doc == nil || s.doc.Status != domain.StatusActive {
		return
	}
	s.seq++
	id := s.writer + ":" + strconv.FormatUint(s.seq, 10)
	s.local.writeIDs[s.player-1] = id
	w := &write{id: id, seq: s.seq, n: len(s.pending), state: s.local, expected: s.baseVersion}
	s.inflight = w
	st := w.state.gameState()
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
		m, err := s.remote.WriteState(ctx, s.matchID, w.expected, st)
		cancel()
		s.post(func() { s.handleWriteResult(w.seq, m, err) })
	}()
}

func (s *Session) handleWriteResult(seq uint64, m *domain.Match, err error) {
	w := s.inflight
	if w == nil || w.seq != seq {
		return
	}
	s.inflight = nil
	switch {
	case err == nil:
		if m == nil || m.Version <= s.baseVersion {
			s.flush()
			return
		}
		s.pending = s.pending[w.n:]
		snap := stateOf(m)
		s.base = snap
		s.local = replay(snap, s.pending, &s.solution)
		s.settle(m)
	case errors.Is(err, domain.ErrVersionConflict):
		obslog.L().Debug("replicator_write_conflict", zap.String("match_id", s.matchID), zap.Int64("expected", w.expected))
		s.refetch()
	case errors.Is(err, domain.ErrNotActive), errors.Is(err, domain.ErrNotFound):
		s.pending = nil
		s.local = s.base
		s.emitState()
		s.refetch()
	default:
		obslog.L().Warn("replicator_write_error",
			zap.String("match_id", s.matchID),
			zap.Int("moves", w.n),
			zap.Error(err),
		)
		s.rollback(s.base, "write_failed")
		s.dropSubscription()
		s.setConn(Disconnected)
		s.scheduleReconnect()
	}
}

func (s *Session) handleSnapshot(m *domain.Match) {
	if m == nil || s.gone {
		return
	}
	if s.doc != nil && m.Version <= s.baseVersion {
		if m.Version < s.baseVersion {
			obslog.L().Debug("replicator_stale_snapshot",
				zap.String("match_id", s.matchID),
				zap.Int64("version", m.Version),
				zap.Int64("have", s.baseVersion),
			)
		}
		s.attempt = 0
		s.setConn(Synced)
		s.markReady()
		s.flush()
		return
	}
	s.setConn(Syncing)
	snap := stateOf(m)
	solution := boardcodec.ToGrid(m.Solution)
	own := snap.writeIDs[s.player-1]

	// The store echoes our write id, so a landed write is recognised even when
	// its own revision was skipped or the clocks disagree.
	if w := s.inflight; w != nil && m.Version > w.expected && own == w.id {
		s.pending = s.pending[w.n:]
		s.inflight = nil
		s.base = w.state
	}

	switch {
	case m.Status != domain.StatusActive:
		s.pending = nil
		s.inflight = nil
		s.base, s.local = snap, snap
	case len(s.pending) == 0:
		s.inflight = nil
		s.base, s.local = snap, snap
	case s.inflight != nil && own == "" && m.Version == s.inflight.expected+1 && confirms(s.inflight.state, snap, s.opts.Tolerance):
		s.pending = s.pending[s.inflight.n:]
		s.inflight = nil
		s.base = snap
		s.local = replay(snap, s.pending, &solution)
	case conflicting(s.base.board, snap.board, s.pending, &solution):
		s.rollback(snap, "conflict")
	default:
		s.pending = dropAbsorbed(s.base.board, snap.board, s.pending, &solution)
		s.inflight = nil
		s.base = snap
		s.local = replay(snap, s.pending, &solution)
	}
	s.settle(m)
}

// settle adopts m as the new baseline document and runs the follow-ups every
// accepted state needs.
func (s *Session) settle(m *domain.Match) {
	s.doc = m.Clone()
	s.baseVersion = m.Version
	s.initial = boardcodec.ToGrid(m.Initial)
	s.solution = boardcodec.ToGrid(m.Solution)
	s.attempt = 0
	s.setConn(Synced)
	s.markReady()
	s.emitState()
	s.checkCompletion()
	s.flush()
}

func (s *Session) rollback(to boardState, cause string) {
	obslog.L().Info("replicator_rollback",
		zap.String("match_id", s.matchID),
		zap.Int("player", s.player),
		zap.Int("dropped_moves", len(s.pending)),
		zap.String("cause", cause),
	)
	s.pending = nil
	s.inflight = nil
	s.base, s.local = to, to
	s.emitState()
}

func (s *Session) checkCompletion() {
	if s.doc == nil {
		return
	}
	if s.doc.Status == domain.StatusCompleted {
		s.emitCompletion(s.doc)
		return
	}
	// only confirmed state may end a match; an optimistic move can still roll back
	if s.doc.Status != domain.StatusActive || s.completing || s.completed || len(s.pending) > 0 {
		return
	}
	winner, reason, ok := decide(s.local, &s.solution)
	if !ok {
		return
	}
	s.completing = true
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.WriteTimeout)
		m, err := s.remote.Complete(ctx, s.matchID, winner, reason)
		cancel()
		s.post(func() { s.handleCompleteResult(m, err) })
	}()
}

func (s *Session) handleCompleteResult(m *domain.Match, err error) {
	s.completing = false
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.markGone()
			return
		}
		obslog.L().Warn("replicator_complete_error", zap.String("match_id", s.matchID), zap.Error(err))
		if !errors.Is(err, domain.ErrNotActive) {
			s.retryCompletion()
		}
		s.refetch()
		return
	}
	if m != nil {
		s.handleSnapshot(m)
	}
}

func (s *Session) retryCompletion() {
	d := s.opts.Backoff(1)
	time.AfterFunc(d, func() { s.post(s.checkCompletion) })
}

func (s *Session) markReady() {
	s.readyOne.Do(func() { close(s.ready) })
}
