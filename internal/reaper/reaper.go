// Package reaper deletes expired matches, abandoned lobbies, stale queue
// tickets and old completed matches in bounded batches.
package reaper

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/metrics"
	"github.com/park285/sudoku-duo/internal/obslog"
	"go.uber.org/zap"
)

const (
	SweepExpired   = "expired"
	SweepLobbies   = "lobbies"
	SweepTickets   = "tickets"
	SweepCompleted = "completed"
)

// Store is the part of the match store the reaper sweeps.
type Store interface {
	ExpiredMatches(ctx context.Context, now time.Time, limit int) ([]string, error)
	StaleLobbies(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	ExpiredTickets(ctx context.Context, now time.Time, limit int) ([]string, error)
	CompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	Delete(ctx context.Context, id string) error
	DeleteTicket(ctx context.Context, playerID string) error
}

type Config struct {
	Interval     time.Duration
	BatchLimit   int
	LobbyTimeout time.Duration
	Retention    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:     time.Hour,
		BatchLimit:   500,
		LobbyTimeout: 10 * time.Minute,
		Retention:    30 * 24 * time.Hour,
	}
}

// SweepReport is the outcome of one sweep.
type SweepReport struct {
	Name    string
	Found   int
	Deleted int
	Err     error
}

type Report struct {
	StartedAt time.Time
	Duration  time.Duration
	Sweeps    []SweepReport
}

// Matches counts deleted match documents across the match sweeps.
func (r Report) Matches() int {
	n := 0
	for _, s := range r.Sweeps {
		if s.Name != SweepTickets {
			n += s.Deleted
		}
	}
	return n
}

func (r Report) Tickets() int {
	for _, s := range r.Sweeps {
		if s.Name == SweepTickets {
			return s.Deleted
		}
	}
	return 0
}

// Failed reports whether any sweep failed.
func (r Report) Failed() bool {
	for _, s := range r.Sweeps {
		if s.Err != nil {
			return true
		}
	}
	return false
}

type Option func(*Reaper)

func WithClock(now func() time.Time) Option { return func(r *Reaper) { r.now = now } }
func WithMetrics(m *metrics.Metrics) Option { return func(r *Reaper) { r.metrics = m } }

type Reaper struct {
	store   Store
	cfg     Config
	now     func() time.Time
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func New(store Store, cfg Config, opts ...Option) *Reaper {
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = d.BatchLimit
	}
	if cfg.LobbyTimeout <= 0 {
		cfg.LobbyTimeout = d.LobbyTimeout
	}
	if cfg.Retention <= 0 {
		cfg.Retention = d.Retention
	}
	r := &Reaper{store: store, cfg: cfg, now: time.Now}
	for _, fn := range opts {
		fn(r)
	}
	return r
}

// RunOnce runs all four sweeps. A failing sweep does not stop the others.
func (r *Reaper) RunOnce(ctx context.Context) Report {
	now := r.now().UTC()
	rep := Report{StartedAt: now}
	limit := r.cfg.BatchLimit

	rep.Sweeps = append(rep.Sweeps,
		r.sweep(ctx, SweepExpired, func() ([]string, error) {
			return r.store.ExpiredMatches(ctx, now, limit)
		}, r.store.Delete),
		r.sweep(ctx, SweepLobbies, func() ([]string, error) {
			return r.store.StaleLobbies(ctx, now.Add(-r.cfg.LobbyTimeout), limit)
		}, r.store.Delete),
		r.sweep(ctx, SweepTickets, func() ([]string, error) {
			return r.store.ExpiredTickets(ctx, now, limit)
		}, r.store.DeleteTicket),
		r.sweep(ctx, SweepCompleted, func() ([]string, error) {
			return r.store.CompletedBefore(ctx, now.Add(-r.cfg.Retention), limit)
		}, r.store.Delete),
	)
	rep.Duration = r.now().UTC().Sub(now)
	if r.metrics != nil {
		r.metrics.ReaperRunDuration.Observe(rep.Duration.Seconds())
	}

	obslog.L().Info("reaper_run",
		zap.Int("matches_deleted", rep.Matches()),
		zap.Int("tickets_deleted", rep.Tickets()),
		zap.Bool("failed", rep.Failed()),
		zap.Duration("took", rep.Duration),
	)
	return rep
}

func (r *Reaper) sweep(ctx context.Context, name string, list func() ([]string, error), del func(context.Context, string) error) SweepReport {
	out := SweepReport{Name: name}
	ids, err := list()
	if err != nil {
		out.Err = err
		r.countError(name)
		obslog.L().Error("reaper_sweep_error", zap.String("sweep", name), zap.Error(err))
		return out
	}
	out.Found = len(ids)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			out.Err = err
			break
		}
		if err := del(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
			if out.Err == nil {
				out.Err = err
			}
			r.countError(name)
			obslog.L().Warn("reaper_delete_error", zap.String("sweep", name), zap.String("id", id), zap.Error(err))
			continue
		}
		out.Deleted++
	}
	if r.metrics != nil && out.Deleted > 0 {
		r.metrics.ReaperDeleted.WithLabelValues(name).Add(float64(out.Deleted))
	}
	if out.Deleted > 0 {
		obslog.L().Info("reaper_sweep", zap.String("sweep", name), zap.Int("deleted", out.Deleted))
	}
	return out
}

func (r *Reaper) countError(name string) {
	if r.metrics != nil {
		r.metrics.ReaperErrors.WithLabelValues(name).Inc()
	}
}

// Start runs a sweep immediately and then every Interval until Stop or ctx ends.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	obslog.L().Info("reaper_start", zap.Duration("interval", r.cfg.Interval), zap.Int("batch_limit", r.cfg.BatchLimit))
	go r.loop(ctx, r.stopCh, r.doneCh)
}

func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	close(stopCh)
	<-doneCh
	obslog.L().Info("reaper_stop")
}

func (r *Reaper) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}
