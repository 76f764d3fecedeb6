// Package httpapi serves the duo HTTP API: matchmaking, private lobbies, match
// document reads and writes, the WebSocket snapshot feed and share cards.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/matchmaking"
	"github.com/park285/sudoku-duo/internal/metrics"
	"github.com/park285/sudoku-duo/internal/msgcat"
	"github.com/park285/sudoku-duo/internal/sharecard"
)

type MatchStore interface {
	Get(ctx context.Context, id string) (*domain.Match, error)
	WriteState(ctx context.Context, id string, expectedVersion int64, st domain.GameState) (*domain.Match, error)
	Complete(ctx context.Context, id string, winner int, reason domain.Reason) (*domain.Match, error)
	Subscribe(ctx context.Context, id string, onSnapshot func(*domain.Match), onError func(error)) (func(), error)
	Ping(ctx context.Context) error
}

type Matchmaker interface {
	Enqueue(ctx context.Context, p domain.Player, d domain.Difficulty) (*matchmaking.EnqueueResult, error)
	Poll(ctx context.Context, playerID string) (*domain.Ticket, error)
	Leave(ctx context.Context, playerID string) error
	FallbackToAI(ctx context.Context, playerID string) (*domain.Match, error)
	CreatePrivate(ctx context.Context, host domain.Player, d domain.Difficulty) (*domain.Match, error)
	JoinPrivate(ctx context.Context, code string, guest domain.Player) (*domain.Match, error)
}

type Results interface {
	Finalize(ctx context.Context, matchID string) (*domain.MatchResult, error)
	Profile(ctx context.Context, playerID string) (*domain.PlayerProfile, error)
	History(ctx context.Context, playerID string, limit int) ([]*domain.HistoryEntry, error)
}

type Option func(*Server)

func WithMetrics(m *metrics.Metrics) Option        { return func(s *Server) { s.metrics = m } }
func WithCatalog(c *msgcat.Catalog) Option         { return func(s *Server) { s.catalog = c } }
func WithCardRenderer(r sharecard.Renderer) Option { return func(s *Server) { s.cards = r } }
func WithHistoryLimit(n int) Option                { return func(s *Server) { s.historyLimit = n } }
func WithFeedWriteTimeout(d time.Duration) Option  { return func(s *Server) { s.feedWriteTimeout = d } }
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.originPatterns = patterns }
}
func WithCompletionHook(fn func(*domain.Match)) Option { return func(s *Server) { s.onCompleted = fn } }

type Server struct {
	store   MatchStore
	mm      Matchmaker
	results Results

	metrics *metrics.Metrics
	catalog *msgcat.Catalog
	cards   sharecard.Renderer

	historyLimit     int
	feedWriteTimeout time.Duration
	originPatterns   []string
	onCompleted      func(*domain.Match)
}

func NewServer(store MatchStore, mm Matchmaker, results Results, opts ...Option) *Server {
	s := &Server{
		store:            store,
		mm:               mm,
		results:          results,
		catalog:          msgcat.Default(),
		cards:            sharecard.NewRenderer(),
		historyLimit:     10,
		feedWriteTimeout: 5 * time.Second,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.healthz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/queue", func(r chi.Router) {
			r.Post("/", s.enqueue)
			r.Get("/{playerID}", s.pollQueue)
			r.Delete("/{playerID}", s.leaveQueue)
			r.Post("/{playerID}/ai", s.fallbackToAI)
		})

		r.Post("/private", s.createPrivate)
		r.Post("/private/join", s.joinPrivate)

		r.Route("/matches/{matchID}", func(r chi.Router) {
			r.Get("/", s.getMatch)
			r.Put("/state", s.writeState)
			r.Post("/complete", s.complete)
			r.Get("/feed", s.feed)
			r.Get("/card.png", s.card)
		})

		r.Get("/players/{playerID}", s.player)
	})
	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "redis": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
