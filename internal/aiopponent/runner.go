package aiopponent

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/internal/replicator"
	"go.uber.org/zap"
)

// ProfileStore persists the adaptive profile per human opponent.
type ProfileStore interface {
	LoadAIProfile(ctx context.Context, playerID string) (Profile, bool, error)
	SaveAIProfile(ctx context.Context, playerID string, p Profile) error
}

// RemoteFactory returns the Remote the AI seat writes through.
type RemoteFactory func(player int) replicator.Remote

type RunnerConfig struct {
	Preset     string
	Timing     Timing
	Replicator []replicator.Option
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Preset: "balanced",
		Timing: DefaultTiming(),
	}
}

// Runner plays the AI seat of AI matches on the server.
type Runner struct {
	remotes  RemoteFactory
	profiles ProfileStore
	cfg      RunnerConfig

	mu      sync.Mutex
	games   map[string]context.CancelFunc
	wg      sync.WaitGroup
	closed  bool
	rngSeed int64
}

func NewRunner(remotes RemoteFactory, profiles ProfileStore, cfg RunnerConfig) *Runner {
	return &Runner{
		remotes:  remotes,
		profiles: profiles,
		cfg:      cfg,
		games:    make(map[string]context.CancelFunc),
		rngSeed:  time.Now().UnixNano(),
	}
}

// Play starts the AI for m in the background. Matches without an AI seat and
// matches already being played are ignored.
func (r *Runner) Play(ctx context.Context, m *domain.Match) bool {
	seat := aiSeat(m)
	if seat == 0 {
		return false
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.games[m.ID]; ok {
		r.mu.Unlock()
		return false
	}
	gctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.games[m.ID] = cancel
	r.rngSeed++
	seed := r.rngSeed
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		defer r.forget(m.ID)
		r.run(gctx, m, seat, rand.New(rand.NewSource(seed)))
	}()
	return true
}

// Stop abandons the AI of one match.
func (r *Runner) Stop(matchID string) {
	r.mu.Lock()
	cancel, ok := r.games[matchID]
	r.mu.Unlock()
	if ok {
		cancel()
	}
}

// Active counts matches the runner is currently playing.
func (r *Runner) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.games)
}

// Close stops every game and waits for them to wind down.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	for _, cancel := range r.games {
		cancel()
	}
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runner) forget(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.games[matchID]; ok {
		cancel()
		delete(r.games, matchID)
	}
}

func (r *Runner) run(ctx context.Context, m *domain.Match, seat int, rng *rand.Rand) {
	human := m.Opponent(seat)
	profile := r.loadProfile(ctx, human.ID)

	sess, err := replicator.Attach(ctx, r.remotes(seat), m.ID, seat, r.cfg.Replicator...)
	if err != nil {
		obslog.L().Warn("ai_attach_error", zap.String("match_id", m.ID), zap.Error(err))
		return
	}
	defer sess.Detach()

	finished := make(chan replicator.Completion, 1)
	gone := make(chan struct{}, 1)
	sess.OnComplete(func(c replicator.Completion) {
		select {
		case finished <- c:
		default:
		}
	})
	sess.OnStateChange(func(v replicator.View) {
		if v.Gone {
			select {
			case gone <- struct{}{}:
			default:
			}
		}
	})

	select {
	case <-sess.Ready():
	case <-ctx.Done():
		return
	}

	if sess.State().Gone {
		return
	}
	view := func() (domain.Grid, domain.Grid, bool) {
		v := sess.State()
		playable := !v.Gone && v.Status == domain.StatusActive && v.Winner == 0 && v.ErrorsRemaining[seat-1] > 0
		return v.Board, v.Solution, playable
	}
	emit := func(mv Move) error {
		err := sess.SubmitMove(mv.Row, mv.Col, mv.Value)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, replicator.ErrCellLocked), errors.Is(err, replicator.ErrNoChange), errors.Is(err, replicator.ErrGivenCell):
			// the human filled it between planning and firing
			return nil
		default:
			return err
		}
	}
	ctrl := NewController(profile, view, emit, WithRand(rng), WithTiming(r.cfg.Timing))
	obslog.L().Info("ai_game_start",
		zap.String("match_id", m.ID),
		zap.Int("seat", seat),
		zap.String("personality", profile.Personality),
		zap.Float64("speed", profile.Speed),
		zap.Float64("error_rate", profile.ErrorRate),
	)
	ctrl.Start()
	defer ctrl.Reset()

	select {
	case c := <-finished:
		ctrl.Reset()
		r.recordOutcome(ctx, human.ID, profile, c.Winner != seat && c.Winner != 0)
		obslog.L().Info("ai_game_end",
			zap.String("match_id", m.ID),
			zap.Int("winner", c.Winner),
			zap.String("reason", string(c.Reason)),
			zap.Int("moves", ctrl.Moves()),
		)
	case <-gone:
		obslog.L().Info("ai_game_gone", zap.String("match_id", m.ID))
	case <-ctx.Done():
	}
}

func (r *Runner) loadProfile(ctx context.Context, humanID string) Profile {
	if r.profiles != nil && humanID != "" {
		p, ok, err := r.profiles.LoadAIProfile(ctx, humanID)
		if err != nil {
			obslog.L().Warn("ai_profile_load_error", zap.String("player_id", humanID), zap.Error(err))
		}
		if ok {
			return p
		}
	}
	return Preset(r.cfg.Preset)
}

func (r *Runner) recordOutcome(ctx context.Context, humanID string, p Profile, userWon bool) {
	if r.profiles == nil || humanID == "" {
		return
	}
	next := AdjustProfile(p, userWon)
	if err := r.profiles.SaveAIProfile(ctx, humanID, next); err != nil {
		obslog.L().Warn("ai_profile_save_error", zap.String("player_id", humanID), zap.Error(err))
	}
}

// aiSeat returns the player number of the AI seat, or 0.
func aiSeat(m *domain.Match) int {
	if m == nil || m.Type != domain.TypeAI {
		return 0
	}
	for i, p := range m.Players {
		if p.IsAI {
			return i + 1
		}
	}
	return 0
}
