package aiopponent_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/sudoku-duo/internal/aiopponent"
	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/matchstore"
	"github.com/park285/sudoku-duo/internal/replicator"
	"github.com/park285/sudoku-duo/internal/sudoku"
	"github.com/redis/go-redis/v9"
)

func newStore(t *testing.T) *matchstore.Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return matchstore.New(rdb)
}

func aiMatch(id string) *domain.Match {
	puzzle, solution := sudoku.Generate(rand.New(rand.NewSource(11)), domain.DifficultyEasy)
	now := time.Now().UTC()
	return &domain.Match{
		ID:         id,
		Status:     domain.StatusActive,
		Type:       domain.TypeAI,
		Difficulty: domain.DifficultyEasy,
		Players: [2]domain.Player{
			{ID: "hu", Name: "Human", Rating: 1200},
			{ID: "ai-1", Name: "Riley Chen", Rating: 1210, IsAI: true},
		},
		Initial:  boardcodec.ToWire(puzzle),
		Solution: boardcodec.ToWire(solution),
		State: domain.GameState{
			Board:           boardcodec.ToWire(puzzle),
			ErrorsRemaining: [2]int{3, 3},
			HintsRemaining:  [2]int{3, 3},
			LastMoveAt:      now,
		},
		CreatedAt: now,
		StartedAt: now,
		ExpireAt:  now.Add(time.Hour),
	}
}

func TestRunnerPlaysAIMatchToCompletion(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	m := aiMatch("ai-match")
	if err := store.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	sharp := aiopponent.Profile{Personality: "balanced", Speed: 1, UserWinRate: 0.5}
	if err := store.SaveAIProfile(ctx, "hu", sharp); err != nil {
		t.Fatalf("SaveAIProfile: %v", err)
	}

	cfg := aiopponent.DefaultRunnerConfig()
	cfg.Timing = aiopponent.Timing{Base: time.Millisecond, Min: time.Millisecond}
	cfg.Replicator = []replicator.Option{replicator.WithBackoff(func(int) time.Duration { return 5 * time.Millisecond })}
	runner := aiopponent.NewRunner(func(player int) replicator.Remote {
		return matchstore.NewAdapter(store, player)
	}, store, cfg)
	defer runner.Close()

	if !runner.Play(ctx, m) {
		t.Fatalf("Play refused an AI match")
	}
	if runner.Play(ctx, m) {
		t.Fatalf("second Play of the same match should be ignored")
	}

	deadline := time.Now().Add(10 * time.Second)
	var final *domain.Match
	for time.Now().Before(deadline) {
		got, err := store.Get(ctx, m.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == domain.StatusCompleted {
			final = got
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if final == nil {
		t.Fatalf("AI never finished the board")
	}
	if final.Winner != 2 || final.Reason != domain.ReasonCompletion {
		t.Fatalf("unexpected result winner=%d reason=%s", final.Winner, final.Reason)
	}

	for time.Now().Before(deadline) {
		p, ok, err := store.LoadAIProfile(ctx, "hu")
		if err != nil {
			t.Fatalf("LoadAIProfile: %v", err)
		}
		if ok && p.Matches == 1 {
			if p.UserWinRate != 0 {
				t.Fatalf("user lost, win rate should be 0, got %v", p.UserWinRate)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("profile not updated after the match")
}

func TestRunnerIgnoresHumanMatches(t *testing.T) {
	store := newStore(t)
	runner := aiopponent.NewRunner(func(player int) replicator.Remote {
		return matchstore.NewAdapter(store, player)
	}, store, aiopponent.DefaultRunnerConfig())
	defer runner.Close()

	m := aiMatch("ranked")
	m.Type = domain.TypeRanked
	m.Players[1].IsAI = false
	if runner.Play(context.Background(), m) {
		t.Fatalf("ranked match should not get an AI")
	}
	if runner.Active() != 0 {
		t.Fatalf("no games expected, got %d", runner.Active())
	}
}

func TestRunnerStopsOnClose(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	m := aiMatch("slow")
	if err := store.Create(ctx, m); err != nil {
		t.Fatalf("Create: %v", err)
	}
	cfg := aiopponent.DefaultRunnerConfig()
	cfg.Timing = aiopponent.Timing{Base: time.Hour, Min: time.Hour}
	runner := aiopponent.NewRunner(func(player int) replicator.Remote {
		return matchstore.NewAdapter(store, player)
	}, nil, cfg)
	if !runner.Play(ctx, m) {
		t.Fatalf("Play refused")
	}
	done := make(chan struct{})
	go func() {
		runner.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Close did not stop the game")
	}
	if runner.Active() != 0 {
		t.Fatalf("games left after Close: %d", runner.Active())
	}
	got, err := store.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Version != 1 {
		t.Fatalf("no moves expected, version %d", got.Version)
	}
}
