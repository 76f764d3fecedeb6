package rating

import "testing"

func TestEqualRatingsWin(t *testing.T) {
	c := ComputeRatingChange(1200, 1200, Win)
	if c.DeltaA != 16 || c.DeltaB != -16 {
		t.Fatalf("expected +16/-16, got %+d/%+d", c.DeltaA, c.DeltaB)
	}
	if c.NewRatingA != 1216 || c.NewRatingB != 1184 {
		t.Fatalf("unexpected new ratings: %d %d", c.NewRatingA, c.NewRatingB)
	}
}

func TestDrawBetweenEqualsIsNeutral(t *testing.T) {
	c := ComputeRatingChange(1500, 1500, Draw)
	if c.DeltaA != 0 || c.DeltaB != 0 {
		t.Fatalf("expected no change on equal draw, got %+d/%+d", c.DeltaA, c.DeltaB)
	}
	up := ComputeRatingChange(1200, 1600, Draw)
	if up.DeltaA <= 0 || up.DeltaB >= 0 {
		t.Fatalf("underdog draw should gain: %+v", up)
	}
}

func TestUpsetGainsMore(t *testing.T) {
	upset := ComputeRatingChange(1000, 1400, Win)
	favored := ComputeRatingChange(1400, 1000, Win)
	if upset.DeltaA <= favored.DeltaA {
		t.Fatalf("upset gain %d should exceed favoured gain %d", upset.DeltaA, favored.DeltaA)
	}
	if upset.DeltaA != 29 || favored.DeltaA != 3 {
		t.Fatalf("unexpected deltas: upset=%d favoured=%d", upset.DeltaA, favored.DeltaA)
	}
}

func TestSymmetry(t *testing.T) {
	ratings := []int{0, 400, 999, 1000, 1199, 1200, 1375, 1600, 1850, 2400, 3000}
	outcomes := []Outcome{Win, Draw, Loss}
	for _, a := range ratings {
		for _, b := range ratings {
			for _, o := range outcomes {
				ab := ComputeRatingChange(a, b, o)
				ba := ComputeRatingChange(b, a, o.Invert())
				if ab.DeltaA != ba.DeltaB || ab.DeltaB != ba.DeltaA {
					t.Fatalf("swap asymmetry a=%d b=%d o=%v: %+v vs %+v", a, b, o, ab, ba)
				}
				if ab.DeltaA != -ab.DeltaB {
					t.Fatalf("not zero-sum a=%d b=%d o=%v: %+v", a, b, o, ab)
				}
			}
		}
	}
}

func TestChangeIsCapped(t *testing.T) {
	for _, pair := range [][2]int{{0, 3000}, {3000, 0}} {
		for _, o := range []Outcome{Win, Loss, Draw} {
			c := ComputeRatingChange(pair[0], pair[1], o)
			if c.DeltaA > MaxChange || c.DeltaA < -MaxChange {
				t.Fatalf("delta %d exceeds cap", c.DeltaA)
			}
		}
	}
}

func TestOutcomeForPlayer(t *testing.T) {
	if OutcomeForPlayer(1, 1) != Win || OutcomeForPlayer(1, 2) != Loss || OutcomeForPlayer(0, 2) != Draw {
		t.Fatalf("unexpected outcome mapping")
	}
}

func TestTierBoundaries(t *testing.T) {
	cases := map[int]Tier{
		-50:  Novice,
		999:  Novice,
		1000: Bronze,
		1199: Bronze,
		1200: Silver,
		1400: Gold,
		1600: Diamond,
		1799: Diamond,
		1800: Master,
		1999: Master,
		2000: Grandmaster,
		9999: Grandmaster,
	}
	for r, want := range cases {
		if got := TierOf(r); got != want {
			t.Fatalf("TierOf(%d) = %v, want %v", r, got, want)
		}
	}
}

func TestTierMonotonic(t *testing.T) {
	prev := TierOf(-1000)
	for r := -999; r <= 4000; r++ {
		cur := TierOf(r)
		if cur < prev {
			t.Fatalf("tier decreased at %d: %v < %v", r, cur, prev)
		}
		prev = cur
	}
}
