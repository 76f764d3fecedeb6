package results

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/sudoku-duo/internal/domain"
)

// memrepo is the in-memory Repository used when no database is configured.
type memrepo struct {
	mu sync.RWMutex

	results  map[string]*domain.MatchResult
	profiles map[string]*domain.PlayerProfile
	history  map[string][]*domain.HistoryEntry // playerID -> entries, latest last
}

func NewMemoryRepository() Repository {
	return &memrepo{
		results:  make(map[string]*domain.MatchResult),
		profiles: make(map[string]*domain.PlayerProfile),
		history:  make(map[string][]*domain.HistoryEntry),
	}
}

func (m *memrepo) InsertResult(ctx context.Context, r *domain.MatchResult) error {
	if r == nil {
		return ErrDuplicateResult
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.results[r.MatchID]; exists {
		return ErrDuplicateResult
	}
	c := *r
	c.RatingChanges = copyChanges(r.RatingChanges)
	m.results[r.MatchID] = &c
	return nil
}

func (m *memrepo) GetResult(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[matchID]
	if !ok {
		return nil, nil
	}
	c := *r
	c.RatingChanges = copyChanges(r.RatingChanges)
	return &c, nil
}

func (m *memrepo) GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.profiles[strings.TrimSpace(playerID)]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (m *memrepo) UpsertProfile(ctx context.Context, p *domain.PlayerProfile) error {
	if p == nil {
		return nil
	}
	c := *p
	m.mu.Lock()
	m.profiles[strings.TrimSpace(p.PlayerID)] = &c
	m.mu.Unlock()
	return nil
}

func (m *memrepo) InsertHistory(ctx context.Context, h *domain.HistoryEntry) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.history[h.PlayerID] {
		if e.MatchID == h.MatchID {
			return nil
		}
	}
	c := *h
	m.history[h.PlayerID] = append(m.history[h.PlayerID], &c)
	return nil
}

func (m *memrepo) RecentHistory(ctx context.Context, playerID string, limit int) ([]*domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*domain.HistoryEntry, 0, len(m.history[playerID]))
	for _, e := range m.history[playerID] {
		c := *e
		items = append(items, &c)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].PlayedAt.After(items[j].PlayedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func copyChanges(in map[string]int) map[string]int {
	if in == nil {
		return nil
	}
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
