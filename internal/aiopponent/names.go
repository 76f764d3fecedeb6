package aiopponent

import "math/rand"

var (
	firstNames = []string{"Alex", "Taylor", "Jordan", "Casey", "Morgan", "Riley", "Avery", "Quinn"}
	lastNames  = []string{"Smith", "Chen", "Kumar", "Müller", "Garcia", "Johnson", "Lee", "Brown"}
)

// RandomName returns a human-looking display name for an AI seat.
func RandomName(rng *rand.Rand) string {
	return firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
}

// RatingNear returns an AI rating within ±spread of target.
func RatingNear(rng *rand.Rand, target, spread int) int {
	if spread <= 0 {
		return target
	}
	return target - spread + rng.Intn(2*spread+1)
}
