// Package app wires the duo server from configuration: the Redis match store,
// matchmaking, the results pipeline, the server-side AI and the HTTP API.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/park285/sudoku-duo/internal/aiopponent"
	"github.com/park285/sudoku-duo/internal/config"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/events"
	"github.com/park285/sudoku-duo/internal/httpapi"
	"github.com/park285/sudoku-duo/internal/matchmaking"
	"github.com/park285/sudoku-duo/internal/matchstore"
	"github.com/park285/sudoku-duo/internal/metrics"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/internal/reaper"
	"github.com/park285/sudoku-duo/internal/replicator"
	"github.com/park285/sudoku-duo/internal/results"
	"go.uber.org/zap"
)

type App struct {
	Config      *config.AppConfig
	Store       *matchstore.Store
	Matchmaking *matchmaking.Service
	Results     *results.Service
	Runner      *aiopponent.Runner
	Reaper      *reaper.Reaper
	Metrics     *metrics.Metrics
	Server      *httpapi.Server

	events events.Publisher
	db     *sql.DB

	ctx    context.Context
	cancel context.CancelFunc
}

// New connects to Redis (required), Postgres and Kafka (both optional) and
// builds every component. The reaper is built but not started.
func New(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	a := &App{Config: cfg, Metrics: metrics.New()}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	store, err := matchstore.Open(ctx, cfg.RedisURL,
		matchstore.WithActiveTTL(cfg.Match.ActiveTTL),
		matchstore.WithCompletedTTL(cfg.Match.CompletedTTL),
	)
	if err != nil {
		a.cancel()
		return nil, fmt.Errorf("init match store: %w", err)
	}
	a.Store = store

	repo, err := a.openRepository(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.events = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		pub, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("init events: %w", err)
		}
		a.events = pub
	}

	a.Results = results.NewService(store, repo,
		results.WithPublisher(a.events),
		results.WithMaxErrors(cfg.Match.MaxErrors),
		results.WithProfileCache(expirable.NewLRU[string, domain.PlayerProfile](cfg.ProfileCacheSize, nil, cfg.ProfileCacheTTL)),
	)

	runnerCfg := aiopponent.DefaultRunnerConfig()
	runnerCfg.Replicator = []replicator.Option{
		replicator.WithTolerance(cfg.Replicator.Tolerance),
		replicator.WithWriteTimeout(cfg.Replicator.WriteTimeout),
	}
	a.Runner = aiopponent.NewRunner(a.remoteFor, store, runnerCfg)
	a.Metrics.TrackAIGames(a.Runner.Active)

	a.Matchmaking = matchmaking.NewService(store, matchmaking.Config{
		TicketTTL:     cfg.Matchmaker.TicketTTL,
		RatingWindow:  cfg.Matchmaker.RatingWindow,
		AIFallback:    cfg.Matchmaker.AIFallback,
		AIRatingDelta: cfg.Matchmaker.AIRatingDelta,
		ActiveTTL:     cfg.Match.ActiveTTL,
		LobbyTTL:      cfg.Match.LobbyTTL,
		MaxErrors:     cfg.Match.MaxErrors,
		MaxHints:      cfg.Match.MaxHints,
	}, matchmaking.WithAIMatchHook(func(m *domain.Match) {
		a.Runner.Play(a.ctx, m)
	}))

	a.Reaper = reaper.New(store, reaper.Config{
		Interval:     cfg.Reaper.Interval,
		BatchLimit:   cfg.Reaper.BatchLimit,
		LobbyTimeout: cfg.Reaper.LobbyTimeout,
		Retention:    cfg.Reaper.Retention,
	}, reaper.WithMetrics(a.Metrics))

	a.Server = httpapi.NewServer(store, a.Matchmaking, a.Results,
		httpapi.WithMetrics(a.Metrics),
		httpapi.WithCompletionHook(func(m *domain.Match) {
			if m.Type == domain.TypeAI {
				a.Runner.Stop(m.ID)
			}
		}),
	)
	return a, nil
}

func (a *App) openRepository(ctx context.Context) (results.Repository, error) {
	if strings.TrimSpace(a.Config.DatabaseURL) == "" {
		obslog.L().Warn("results_memory_repository", zap.String("reason", "DATABASE_URL not set"))
		return results.NewMemoryRepository(), nil
	}
	db, err := results.OpenDB(a.Config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("init results db: %w", err)
	}
	a.db = db
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := results.EnsureSchema(sctx, db); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return results.NewRepository(db), nil
}

// remoteFor is the Remote the server-side AI plays through.
func (a *App) remoteFor(player int) replicator.Remote {
	return &finalizingRemote{Adapter: matchstore.NewAdapter(a.Store, player), app: a}
}

// Finalize records a completed match once and counts it. Replays are ignored.
func (a *App) Finalize(ctx context.Context, m *domain.Match) {
	_, err := a.Results.Finalize(ctx, m.ID)
	switch {
	case errors.Is(err, results.ErrDuplicateResult):
		return
	case err != nil:
		obslog.L().Warn("app_finalize_error", zap.String("match_id", m.ID), zap.Error(err))
		return
	}
	a.Metrics.MatchesCompleted.WithLabelValues(string(m.Type), string(m.Reason)).Inc()
}

// Close stops the AI and the reaper and releases every connection.
func (a *App) Close() error {
	a.cancel()
	if a.Reaper != nil {
		a.Reaper.Stop()
	}
	if a.Runner != nil {
		a.Runner.Close()
	}
	var errs []error
	if a.events != nil {
		errs = append(errs, a.events.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// finalizingRemote completes matches through the store and then records the result.
type finalizingRemote struct {
	*matchstore.Adapter
	app *App
}

func (r *finalizingRemote) Complete(ctx context.Context, matchID string, winner int, reason domain.Reason) (*domain.Match, error) {
	m, err := r.Adapter.Complete(ctx, matchID, winner, reason)
	if err != nil {
		return nil, err
	}
	r.app.Finalize(ctx, m)
	return m, nil
}
