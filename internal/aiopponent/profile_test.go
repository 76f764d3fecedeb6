package aiopponent

import (
	"math/rand"
	"testing"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
)

func TestPresetFallback(t *testing.T) {
	if Preset("SPEEDSTER").Speed != 1.4 {
		t.Fatalf("preset lookup should be case-insensitive")
	}
	if Preset("unknown").Personality != "balanced" {
		t.Fatalf("unknown preset should fall back to balanced")
	}
}

func TestAdjustProfileWaitsForSamples(t *testing.T) {
	p := Preset("balanced")
	p = AdjustProfile(p, false)
	p = AdjustProfile(p, false)
	if p.Speed != 1.0 || p.ErrorRate != 0.08 {
		t.Fatalf("profile changed before %d matches: %+v", MinMatchesBeforeAdjust, p)
	}
	if p.Matches != 2 || p.UserWinRate != 0 {
		t.Fatalf("unexpected bookkeeping: %+v", p)
	}
}

func TestAdjustProfileDirection(t *testing.T) {
	losing := Profile{Speed: 1.0, ErrorRate: 0.08, UserWinRate: 0.2, Matches: 5}
	eased := AdjustProfile(losing, false)
	if eased.Speed >= losing.Speed || eased.ErrorRate <= losing.ErrorRate {
		t.Fatalf("AI should ease off when the user keeps losing: %+v", eased)
	}

	winning := Profile{Speed: 1.0, ErrorRate: 0.08, UserWinRate: 0.9, Matches: 5}
	hardened := AdjustProfile(winning, true)
	if hardened.Speed <= winning.Speed || hardened.ErrorRate >= winning.ErrorRate {
		t.Fatalf("AI should tighten when the user keeps winning: %+v", hardened)
	}

	inBand := Profile{Speed: 1.0, ErrorRate: 0.08, UserWinRate: 0.5, Matches: 9}
	same := AdjustProfile(inBand, true)
	if same.Speed != 1.0 || same.ErrorRate != 0.08 {
		t.Fatalf("profile inside band should not move: %+v", same)
	}
}

func TestAdjustProfileBounds(t *testing.T) {
	p := Profile{Speed: 1.0, ErrorRate: 0.08, Matches: 3}
	for i := 0; i < 200; i++ {
		p = AdjustProfile(p, false)
	}
	if p.Speed != minSpeed || p.ErrorRate != maxErrorRate {
		t.Fatalf("expected floor/ceiling after long losing run: %+v", p)
	}
	for i := 0; i < 2000; i++ {
		p = AdjustProfile(p, true)
	}
	if p.Speed != maxSpeed || p.ErrorRate != minErrorRate {
		t.Fatalf("expected ceiling/floor after long winning run: %+v", p)
	}
}

// simulated user whose chance to win falls as the AI gets faster and sharper
func TestAdjustProfileConvergesIntoBand(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	p := Preset("speedster")
	p.Speed = 2.0
	p.ErrorRate = minErrorRate
	for i := 0; i < 3000; i++ {
		strength := (p.Speed-minSpeed)/(maxSpeed-minSpeed)*0.6 + (maxErrorRate-p.ErrorRate)/(maxErrorRate-minErrorRate)*0.4
		userWin := rng.Float64() > strength*0.9
		p = AdjustProfile(p, userWin)
	}
	if p.UserWinRate < 0.40 || p.UserWinRate > 0.60 {
		t.Fatalf("long-run user win rate %.3f outside expected neighbourhood of the band", p.UserWinRate)
	}
}

func TestAnalyzeOrdersEasiestFirst(t *testing.T) {
	tb := newTable(21, domain.DifficultyHard)
	cells := Analyze(&tb.board, &tb.solution)
	if len(cells) != 55 {
		t.Fatalf("expected 55 fillable cells, got %d", len(cells))
	}
	for i := 1; i < len(cells); i++ {
		if cells[i].Difficulty < cells[i-1].Difficulty {
			t.Fatalf("cells not sorted at %d", i)
		}
	}
	for _, c := range cells {
		if c.Difficulty < 0 || c.Difficulty > 1 {
			t.Fatalf("difficulty out of range: %+v", c)
		}
	}
	// a wrong digit makes its cell fillable again
	r, c := cells[0].Row, cells[0].Col
	tb.board[r][c] = tb.solution[r][c]%9 + 1
	if got := len(Analyze(&tb.board, &tb.solution)); got != 55 {
		t.Fatalf("wrong digit should keep the cell fillable, got %d cells", got)
	}
}

func TestPlanMoveErrorsAndDelay(t *testing.T) {
	tb := newTable(22, domain.DifficultyExpert)
	rng := rand.New(rand.NewSource(4))
	always := Profile{Speed: 1, ErrorRate: 1}
	errs := 0
	for i := 0; i < 50; i++ {
		mv, ok := PlanMove(&tb.board, &tb.solution, always, DefaultTiming(), rng)
		if !ok {
			t.Fatalf("expected a move")
		}
		if mv.IsError {
			errs++
			if mv.Value == tb.solution[mv.Row][mv.Col] {
				t.Fatalf("error move carries the right digit")
			}
		}
		if mv.Delay < time.Second {
			t.Fatalf("delay %v below minimum", mv.Delay)
		}
	}
	if errs == 0 {
		t.Fatalf("error rate 1 produced no wrong digits")
	}
}

func TestDelayNarrowsWithSpeed(t *testing.T) {
	timing := DefaultTiming()
	slow := Profile{Speed: 0.5}
	fast := Profile{Speed: 2.0}
	var slowMax, fastMax, slowMin, fastMin time.Duration
	slowMin, fastMin = time.Hour, time.Hour
	rng := rand.New(rand.NewSource(8))
	for i := 0; i < 500; i++ {
		d := rng.Float64()
		s := moveDelay(timing, slow, d, rng)
		f := moveDelay(timing, fast, d, rng)
		slowMax, slowMin = maxDur(slowMax, s), minDur(slowMin, s)
		fastMax, fastMin = maxDur(fastMax, f), minDur(fastMin, f)
	}
	if fastMax-fastMin >= slowMax-slowMin {
		t.Fatalf("fast range %v should be narrower than slow range %v", fastMax-fastMin, slowMax-slowMin)
	}
	if fastMin < timing.Min {
		t.Fatalf("delay below floor: %v", fastMin)
	}
}

func maxDur(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func TestRandomNameAndRating(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if RandomName(rng) == "" {
		t.Fatalf("empty name")
	}
	for i := 0; i < 100; i++ {
		r := RatingNear(rng, 1200, 50)
		if r < 1150 || r > 1250 {
			t.Fatalf("rating %d outside ±50", r)
		}
	}
}
