package rating

import "math"

const (
	KFactor   = 32
	MaxChange = 50
	Default   = 1200
	Min       = 0
	Max       = 3000
)

// Outcome is the result from player A's point of view.
type Outcome int

const (
	Loss Outcome = iota
	Draw
	Win
)

func (o Outcome) score() float64 {
	switch o {
	case Win:
		return 1
	case Draw:
		return 0.5
	default:
		return 0
	}
}

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Draw:
		return "draw"
	default:
		return "loss"
	}
}

// Invert returns the same result seen from the other player.
func (o Outcome) Invert() Outcome {
	switch o {
	case Win:
		return Loss
	case Loss:
		return Win
	default:
		return Draw
	}
}

type Change struct {
	DeltaA     int
	DeltaB     int
	NewRatingA int
	NewRatingB int
}

// ComputeRatingChange applies the logistic Elo model to both players.
func ComputeRatingChange(ratingA, ratingB int, outcome Outcome) Change {
	deltaA := delta(ratingA, ratingB, outcome.score())
	deltaB := delta(ratingB, ratingA, outcome.Invert().score())
	return Change{
		DeltaA:     deltaA,
		DeltaB:     deltaB,
		NewRatingA: ratingA + deltaA,
		NewRatingB: ratingB + deltaB,
	}
}

// Expected is the probability that a player rated r beats one rated opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

func delta(r, opp int, score float64) int {
	d := int(math.Round(KFactor * (score - Expected(r, opp))))
	if d > MaxChange {
		return MaxChange
	}
	if d < -MaxChange {
		return -MaxChange
	}
	return d
}

// OutcomeForPlayer maps a match winner (0, 1, 2) onto one seat.
func OutcomeForPlayer(winner, playerNumber int) Outcome {
	switch {
	case winner == 0:
		return Draw
	case winner == playerNumber:
		return Win
	default:
		return Loss
	}
}

// Clamp keeps a rating inside the accepted range.
func Clamp(r int) int {
	if r < Min {
		return Min
	}
	if r > Max {
		return Max
	}
	return r
}
