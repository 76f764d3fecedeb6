package sharecard

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"math/rand"
	"testing"
	"time"

	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/rating"
	"github.com/park285/sudoku-duo/internal/sudoku"
)

func finishedMatch() *domain.Match {
	puzzle, solution := sudoku.Generate(rand.New(rand.NewSource(3)), domain.DifficultyMedium)
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Match{
		ID:         "card",
		Status:     domain.StatusCompleted,
		Type:       domain.TypeRanked,
		Difficulty: domain.DifficultyMedium,
		Players: [2]domain.Player{
			{ID: "a", Name: "Alice", Rating: 1190},
			{ID: "b", Name: "A very long display name that will not fit", Rating: 1420},
		},
		Initial:       boardcodec.ToWire(puzzle),
		Solution:      boardcodec.ToWire(solution),
		State:         domain.GameState{Board: boardcodec.ToWire(solution)},
		StartedAt:     start,
		CompletedAt:   start.Add(7 * time.Minute),
		Winner:        1,
		Reason:        domain.ReasonCompletion,
		RatingChanges: map[string]int{"a": 24, "b": -24},
	}
}

func TestRenderPNG(t *testing.T) {
	out, err := NewRenderer().RenderPNG(context.Background(), finishedMatch(), Options{
		Headline: "Alice won by finishing the board",
		Footer:   "sudokuduo://join/ABC123",
	})
	if err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != boardSize+2*sideMargin || b.Dy() <= boardSize {
		t.Fatalf("unexpected size %v", b)
	}
	// a given digit's cell is not plain background
	if c := img.At(sideMargin+cellSize/2, topMargin+cellSize/2); c == backgroundColor {
		t.Fatalf("board cell not painted")
	}
}

func TestRenderRejectsNilAndCancelled(t *testing.T) {
	r := NewRenderer()
	if _, err := r.RenderPNG(context.Background(), nil, Options{}); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("want ErrNoMatch, got %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.RenderPNG(ctx, finishedMatch(), Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestBadgesRenderForEveryTier(t *testing.T) {
	for tier := rating.Novice; tier <= rating.Grandmaster; tier++ {
		img, err := renderBadge(tier, badgeSize)
		if err != nil {
			t.Fatalf("%s: %v", tier, err)
		}
		center := img.At(badgeSize/2, badgeSize/2)
		if _, _, _, a := center.RGBA(); a == 0 {
			t.Fatalf("%s badge is empty", tier)
		}
		again, _ := renderBadge(tier, badgeSize)
		if again != img {
			t.Fatalf("%s badge not cached", tier)
		}
	}
}

func TestTruncateToWidth(t *testing.T) {
	if got := truncateToWidth("short", 200); got != "short" {
		t.Fatalf("got %q", got)
	}
	got := truncateToWidth("a rather long headline for a tiny card", 70)
	if measure(got) > 70 || got[len(got)-3:] != "..." {
		t.Fatalf("bad truncation %q", got)
	}
}
