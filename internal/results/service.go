// Package results turns completed matches into rating changes, profile
// statistics and history entries.
package results

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/events"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/internal/rating"
	"go.uber.org/zap"
)

var (
	ErrNotCompleted    = errors.New("match is not completed")
	ErrProfileNotFound = errors.New("player profile not found")
)

const (
	defaultProfileCacheSize = 1024
	defaultProfileCacheTTL  = 5 * time.Second
)

const (
	resultWin  = "win"
	resultLoss = "loss"
	resultDraw = "draw"
)

// MatchSource is the part of the match store the service needs.
type MatchSource interface {
	Get(ctx context.Context, id string) (*domain.Match, error)
	Update(ctx context.Context, id string, fn func(m *domain.Match) error) (*domain.Match, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option   { return func(s *Service) { s.now = now } }
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }
func WithMaxErrors(n int) Option              { return func(s *Service) { s.maxErrors = n } }

// WithProfileCache replaces the default profile cache. Profiles are evicted on
// every result write, so the TTL only bounds staleness from other writers.
func WithProfileCache(c *expirable.LRU[string, domain.PlayerProfile]) Option {
	return func(s *Service) { s.profiles = c }
}

type Service struct {
	matches   MatchSource
	repo      Repository
	events    events.Publisher
	profiles  *expirable.LRU[string, domain.PlayerProfile]
	now       func() time.Time
	maxErrors int
}

func NewService(matches MatchSource, repo Repository, opts ...Option) *Service {
	s := &Service{
		matches:   matches,
		repo:      repo,
		events:    events.Nop{},
		profiles:  expirable.NewLRU[string, domain.PlayerProfile](defaultProfileCacheSize, nil, defaultProfileCacheTTL),
		now:       time.Now,
		maxErrors: domain.DefaultErrors,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// Finalize records a completed match exactly once. A replay returns
// ErrDuplicateResult and changes nothing.
func (s *Service) Finalize(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	m, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m.Status != domain.StatusCompleted {
		return nil, ErrNotCompleted
	}

	changes := make(map[string]int, 2)
	if m.Type.Rated() {
		c := rating.ComputeRatingChange(m.Players[0].Rating, m.Players[1].Rating, rating.OutcomeForPlayer(m.Winner, 1))
		changes[m.Players[0].ID] = c.DeltaA
		changes[m.Players[1].ID] = c.DeltaB
	}

	endedAt := m.CompletedAt
	if endedAt.IsZero() {
		endedAt = s.now().UTC()
	}
	started := m.StartedAt
	if started.IsZero() {
		started = m.CreatedAt
	}
	duration := endedAt.Sub(started)
	if duration < 0 {
		duration = 0
	}

	res := &domain.MatchResult{
		MatchID:       m.ID,
		Type:          m.Type,
		Difficulty:    m.Difficulty,
		Winner:        m.Winner,
		Reason:        m.Reason,
		Player1ID:     m.Players[0].ID,
		Player2ID:     m.Players[1].ID,
		RatingChanges: changes,
		StartedAt:     started,
		EndedAt:       endedAt,
		Duration:      duration,
	}
	if err := s.repo.InsertResult(ctx, res); err != nil {
		if errors.Is(err, ErrDuplicateResult) {
			obslog.L().Info("result_duplicate", zap.String("match_id", m.ID))
		}
		return nil, err
	}

	var outcomes [2]events.PlayerOutcome
	for i, p := range m.Players {
		seat := i + 1
		opp := m.Opponent(seat)
		delta := changes[p.ID]
		made := s.errorsMade(m.State.ErrorsRemaining[i])
		oppMade := s.errorsMade(m.State.ErrorsRemaining[1-i])
		result := resultFor(m.Winner, seat)
		outcomes[i] = events.PlayerOutcome{
			ID:           p.ID,
			Name:         p.Name,
			IsAI:         p.IsAI,
			Result:       result,
			RatingBefore: p.Rating,
			RatingChange: delta,
			Errors:       made,
			CellsSolved:  m.State.CellsSolved[i],
		}
		if p.IsAI || p.ID == "" {
			continue
		}
		if err := s.updateProfile(ctx, p, result, delta, m.Type.Rated(), endedAt); err != nil {
			return nil, err
		}
		err := s.repo.InsertHistory(ctx, &domain.HistoryEntry{
			MatchID:        m.ID,
			PlayerID:       p.ID,
			OpponentID:     opp.ID,
			OpponentName:   opp.Name,
			Result:         result,
			RatingChange:   delta,
			Duration:       duration,
			Difficulty:     m.Difficulty,
			Errors:         made,
			OpponentErrors: oppMade,
			ErrorFree:      made == 0,
			PlayedAt:       endedAt,
		})
		if err != nil {
			return nil, err
		}
	}

	if len(changes) > 0 {
		_, err := s.matches.Update(ctx, m.ID, func(doc *domain.Match) error {
			doc.RatingChanges = changes
			return nil
		})
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			obslog.L().Warn("result_match_annotate_error", zap.String("match_id", m.ID), zap.Error(err))
		}
	}

	ev := events.MatchCompleted{
		MatchID:     m.ID,
		MatchType:   string(m.Type),
		Difficulty:  string(m.Difficulty),
		Winner:      m.Winner,
		Reason:      string(m.Reason),
		Players:     outcomes,
		DurationMS:  duration.Milliseconds(),
		CompletedAt: endedAt,
	}
	if err := s.events.PublishMatchCompleted(ctx, ev); err != nil {
		obslog.L().Warn("result_event_error", zap.String("match_id", m.ID), zap.Error(err))
	}

	obslog.L().Info("result_recorded",
		zap.String("match_id", m.ID),
		zap.String("type", string(m.Type)),
		zap.Int("winner", m.Winner),
		zap.String("reason", string(m.Reason)),
		zap.Any("rating_changes", changes),
	)
	return res, nil
}

// Profile returns a player's profile, served from the short-lived cache when possible.
func (s *Service) Profile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	if p, ok := s.profiles.Get(playerID); ok {
		return &p, nil
	}
	p, err := s.repo.GetProfile(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrProfileNotFound
	}
	s.profiles.Add(playerID, *p)
	return p, nil
}

func (s *Service) History(ctx context.Context, playerID string, limit int) ([]*domain.HistoryEntry, error) {
	return s.repo.RecentHistory(ctx, playerID, limit)
}

func (s *Service) updateProfile(ctx context.Context, p domain.Player, result string, delta int, rated bool, at time.Time) error {
	profile, err := s.repo.GetProfile(ctx, p.ID)
	if err != nil {
		return err
	}
	if profile == nil {
		profile = &domain.PlayerProfile{
			PlayerID:  p.ID,
			Rating:    p.Rating,
			CreatedAt: at,
		}
		if profile.Rating == 0 {
			profile.Rating = rating.Default
		}
	}
	if p.Name != "" {
		profile.DisplayName = p.Name
	}
	profile.GamesPlayed++
	profile.LastPlayedAt = at
	profile.UpdatedAt = at
	switch result {
	case resultWin:
		profile.Wins++
	case resultLoss:
		profile.Losses++
	default:
		profile.Draws++
	}
	if profile.StreakType == result {
		profile.Streak++
	} else {
		profile.Streak = 1
		profile.StreakType = result
	}
	if rated {
		// ratings move from the snapshot both players were matched with
		profile.Rating = rating.Clamp(p.Rating + delta)
	}
	profile.Tier = rating.TierOf(profile.Rating).String()

	if err := s.repo.UpsertProfile(ctx, profile); err != nil {
		return fmt.Errorf("profile %s: %w", p.ID, err)
	}
	s.profiles.Remove(p.ID)
	return nil
}

func (s *Service) errorsMade(remaining int) int {
	n := s.maxErrors - remaining
	if n < 0 {
		return 0
	}
	return n
}

func resultFor(winner, seat int) string {
	switch rating.OutcomeForPlayer(winner, seat) {
	case rating.Win:
		return resultWin
	case rating.Loss:
		return resultLoss
	default:
		return resultDraw
	}
}
