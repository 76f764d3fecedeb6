// Package matchmaking pairs ranked players, falls back to AI opponents and
// runs invite-code private lobbies.
package matchmaking

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/sudoku-duo/internal/aiopponent"
	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/deeplink"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/matchstore"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/internal/rating"
	"github.com/park285/sudoku-duo/internal/sudoku"
	"go.uber.org/zap"
)

var (
	ErrInvalidRating = errors.New("rating must be between 0 and 3000")
	ErrInvalidPlayer = errors.New("player id required")
	ErrInvalidCode   = errors.New("invalid invite code")
	ErrMatchGone     = errors.New("match no longer available")
	ErrMatchFull     = errors.New("match is full")
	ErrSelfJoin      = errors.New("cannot join your own match")
	ErrTooEarly      = errors.New("still searching for a human opponent")
	ErrNotQueued     = errors.New("not in the matchmaking queue")
	ErrCodeExhausted = errors.New("failed to allocate invite code")
)

const (
	codeLength   = 6
	codeAttempts = 10
	codeLetters  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type Config struct {
	TicketTTL     time.Duration
	RatingWindow  int
	AIFallback    time.Duration
	AIRatingDelta int
	ActiveTTL     time.Duration
	LobbyTTL      time.Duration
	MaxErrors     int
	MaxHints      int
}

func DefaultConfig() Config {
	return Config{
		TicketTTL:     2 * time.Minute,
		RatingWindow:  200,
		AIFallback:    5 * time.Second,
		AIRatingDelta: 50,
		ActiveTTL:     time.Hour,
		LobbyTTL:      10 * time.Minute,
		MaxErrors:     domain.DefaultErrors,
		MaxHints:      domain.DefaultHints,
	}
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithRand(r *mrand.Rand) Option         { return func(s *Service) { s.rng = r } }

// WithAIMatchHook is called for every AI match right after it is stored.
func WithAIMatchHook(fn func(*domain.Match)) Option { return func(s *Service) { s.onAIMatch = fn } }

type Service struct {
	store     *matchstore.Store
	cfg       Config
	now       func() time.Time
	rngM      sync.Mutex
	rng       *mrand.Rand
	onAIMatch func(*domain.Match)
	codeGen   func() (string, error)
}

func NewService(store *matchstore.Store, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		rng:     mrand.New(mrand.NewSource(time.Now().UnixNano())),
		codeGen: inviteCode,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// EnqueueResult carries either the waiting ticket or the match it was paired into.
type EnqueueResult struct {
	Ticket *domain.Ticket
	Match  *domain.Match
}

// Enqueue pairs the player with the closest waiting ticket inside the rating
// window, or leaves a ticket for someone else to claim.
func (s *Service) Enqueue(ctx context.Context, p domain.Player, d domain.Difficulty) (*EnqueueResult, error) {
	if err := validatePlayer(p); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if cur, err := s.store.GetTicket(ctx, p.ID); err == nil && cur.MatchID != "" {
		m, err := s.store.Get(ctx, cur.MatchID)
		if err == nil {
			return &EnqueueResult{Ticket: cur, Match: m}, nil
		}
	}

	candidates, err := s.store.QueueRange(ctx, p.Rating-s.cfg.RatingWindow, p.Rating+s.cfg.RatingWindow)
	if err != nil {
		return nil, fmt.Errorf("queue range: %w", err)
	}
	candidates = filterCandidates(candidates, p, d, now)
	for _, c := range candidates {
		won, err := s.store.ClaimTicket(ctx, c.PlayerID)
		if err != nil {
			return nil, err
		}
		if !won {
			continue
		}
		opp := domain.Player{ID: c.PlayerID, Name: c.Name, Rating: c.Rating, JoinedAt: now}
		me := p
		me.JoinedAt = now
		m := s.newMatch(uuid.NewString(), domain.TypeRanked, d, [2]domain.Player{me, opp}, now)
		if err := s.store.Create(ctx, m); err != nil {
			// put the claimed player back so they keep their place
			_ = s.store.PutTicket(ctx, &c)
			return nil, err
		}
		c.MatchID = m.ID
		if err := s.store.PutTicket(ctx, &c); err != nil {
			obslog.L().Warn("matchmaking_ticket_update_error", zap.String("player_id", c.PlayerID), zap.Error(err))
		}
		_ = s.store.DeleteTicket(ctx, p.ID)
		obslog.L().Info("matchmaking_paired",
			zap.String("match_id", m.ID),
			zap.String("player1", p.ID),
			zap.String("player2", c.PlayerID),
			zap.Int("rating_gap", absInt(p.Rating-c.Rating)),
		)
		return &EnqueueResult{Match: m}, nil
	}

	t := &domain.Ticket{
		PlayerID:   p.ID,
		Name:       p.Name,
		Rating:     p.Rating,
		Difficulty: d,
		CreatedAt:  now,
		ExpireAt:   now.Add(s.cfg.TicketTTL),
	}
	if err := s.store.PutTicket(ctx, t); err != nil {
		return nil, err
	}
	obslog.L().Info("matchmaking_enqueue",
		zap.String("player_id", p.ID),
		zap.Int("rating", p.Rating),
		zap.String("difficulty", string(d)),
	)
	return &EnqueueResult{Ticket: t}, nil
}

// Poll returns the player's ticket; MatchID is set once someone paired with it.
func (s *Service) Poll(ctx context.Context, playerID string) (*domain.Ticket, error) {
	t, err := s.store.GetTicket(ctx, playerID)
	if errors.Is(err, matchstore.ErrTicketNotFound) {
		return nil, ErrNotQueued
	}
	if err != nil {
		return nil, err
	}
	if t.MatchID == "" && !s.now().Before(t.ExpireAt) {
		_ = s.store.DeleteTicket(ctx, playerID)
		return nil, ErrNotQueued
	}
	return t, nil
}

func (s *Service) Leave(ctx context.Context, playerID string) error {
	if strings.TrimSpace(playerID) == "" {
		return ErrInvalidPlayer
	}
	obslog.L().Info("matchmaking_leave", zap.String("player_id", playerID))
	return s.store.DeleteTicket(ctx, playerID)
}

// FallbackToAI turns a ticket that waited out the fallback window into an AI
// match. A ticket paired in the meantime returns the human match instead.
func (s *Service) FallbackToAI(ctx context.Context, playerID string) (*domain.Match, error) {
	t, err := s.store.GetTicket(ctx, playerID)
	if errors.Is(err, matchstore.ErrTicketNotFound) {
		return nil, ErrNotQueued
	}
	if err != nil {
		return nil, err
	}
	if t.MatchID != "" {
		return s.pairedMatch(ctx, t)
	}
	now := s.now().UTC()
	if now.Before(t.CreatedAt.Add(s.cfg.AIFallback)) {
		return nil, ErrTooEarly
	}
	won, err := s.store.ClaimTicket(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if !won {
		// someone claimed us between the read and the claim
		t, err = s.store.GetTicket(ctx, playerID)
		if err != nil {
			return nil, err
		}
		if t.MatchID == "" {
			return nil, ErrNotQueued
		}
		return s.pairedMatch(ctx, t)
	}

	s.rngM.Lock()
	ai := domain.Player{
		ID:       "ai-" + uuid.NewString(),
		Name:     aiopponent.RandomName(s.rng),
		Rating:   rating.Clamp(aiopponent.RatingNear(s.rng, t.Rating, s.cfg.AIRatingDelta)),
		IsAI:     true,
		JoinedAt: now,
	}
	s.rngM.Unlock()
	human := domain.Player{ID: t.PlayerID, Name: t.Name, Rating: t.Rating, JoinedAt: now}
	m := s.newMatch(uuid.NewString(), domain.TypeAI, t.Difficulty, [2]domain.Player{human, ai}, now)
	if err := s.store.Create(ctx, m); err != nil {
		return nil, err
	}
	_ = s.store.DeleteTicket(ctx, playerID)
	obslog.L().Info("matchmaking_ai_fallback",
		zap.String("match_id", m.ID),
		zap.String("player_id", playerID),
		zap.String("ai_name", ai.Name),
		zap.Int("ai_rating", ai.Rating),
	)
	if s.onAIMatch != nil {
		s.onAIMatch(m)
	}
	return m, nil
}

func (s *Service) pairedMatch(ctx context.Context, t *domain.Ticket) (*domain.Match, error) {
	m, err := s.store.Get(ctx, t.MatchID)
	if errors.Is(err, domain.ErrNotFound) {
		_ = s.store.DeleteTicket(ctx, t.PlayerID)
		return nil, ErrMatchGone
	}
	if err != nil {
		return nil, err
	}
	_ = s.store.DeleteTicket(ctx, t.PlayerID)
	return m, nil
}

// CreatePrivate opens a lobby whose id is a fresh invite code.
func (s *Service) CreatePrivate(ctx context.Context, host domain.Player, d domain.Difficulty) (*domain.Match, error) {
	if err := validatePlayer(host); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	host.JoinedAt = now
	for i := 0; i < codeAttempts; i++ {
		code, err := s.codeGen()
		if err != nil {
			return nil, err
		}
		m := s.newMatch(code, domain.TypePrivate, d, [2]domain.Player{host, {}}, now)
		m.Status = domain.StatusLobby
		m.StartedAt = time.Time{}
		m.HostID = host.ID
		m.InviteCode = code
		m.ExpireAt = now.Add(s.cfg.LobbyTTL)
		err = s.store.Create(ctx, m)
		if errors.Is(err, matchstore.ErrExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		obslog.L().Info("private_create",
			zap.String("code", code),
			zap.String("host_id", host.ID),
			zap.String("share_url", deeplink.JoinURL(code)),
		)
		return m, nil
	}
	return nil, ErrCodeExhausted
}

// JoinPrivate seats the guest and starts the match.
func (s *Service) JoinPrivate(ctx context.Context, code string, guest domain.Player) (*domain.Match, error) {
	if err := validatePlayer(guest); err != nil {
		return nil, err
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if !deeplink.ValidCode(code) {
		return nil, ErrInvalidCode
	}
	id, err := s.store.ResolveInvite(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrMatchGone
	}
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m, err := s.store.Update(ctx, id, func(m *domain.Match) error {
		switch {
		case m.HostID == guest.ID:
			return ErrSelfJoin
		case m.Status != domain.StatusLobby && m.Status != domain.StatusActive:
			return ErrMatchGone
		case m.Full():
			return ErrMatchFull
		case !now.Before(m.ExpireAt):
			return ErrMatchGone
		}
		guest.JoinedAt = now
		m.Players[1] = guest
		m.Status = domain.StatusActive
		m.StartedAt = now
		m.PushExpiry(now.Add(s.cfg.ActiveTTL))
		return nil
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, ErrMatchGone
	}
	if err != nil {
		obslog.L().Warn("private_join_error", zap.String("code", code), zap.String("player_id", guest.ID), zap.Error(err))
		return nil, err
	}
	obslog.L().Info("private_join", zap.String("code", code), zap.String("player_id", guest.ID))
	return m, nil
}

func (s *Service) newMatch(id string, typ domain.MatchType, d domain.Difficulty, players [2]domain.Player, now time.Time) *domain.Match {
	s.rngM.Lock()
	puzzle, solution := sudoku.Generate(s.rng, d)
	s.rngM.Unlock()
	return &domain.Match{
		ID:         id,
		Status:     domain.StatusActive,
		Type:       typ,
		Difficulty: d,
		Players:    players,
		HostID:     players[0].ID,
		Initial:    boardcodec.ToWire(puzzle),
		Solution:   boardcodec.ToWire(solution),
		State: domain.GameState{
			Board:           boardcodec.ToWire(puzzle),
			ErrorsRemaining: [2]int{s.cfg.MaxErrors, s.cfg.MaxErrors},
			HintsRemaining:  [2]int{s.cfg.MaxHints, s.cfg.MaxHints},
			LastMoveAt:      now,
		},
		CreatedAt: now,
		StartedAt: now,
		ExpireAt:  now.Add(s.cfg.ActiveTTL),
	}
}

func filterCandidates(in []domain.Ticket, p domain.Player, d domain.Difficulty, now time.Time) []domain.Ticket {
	out := in[:0]
	for _, t := range in {
		if t.PlayerID == p.ID || t.Difficulty != d || t.MatchID != "" || !now.Before(t.ExpireAt) {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		gi, gj := absInt(out[i].Rating-p.Rating), absInt(out[j].Rating-p.Rating)
		if gi != gj {
			return gi < gj
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func validatePlayer(p domain.Player) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrInvalidPlayer
	}
	if p.Rating < rating.Min || p.Rating > rating.Max {
		return ErrInvalidRating
	}
	return nil
}

// inviteCode returns six upper-case alphanumerics from crypto/rand.
func inviteCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeLetters[int(b[i])%len(codeLetters)]
	}
	return string(b), nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
