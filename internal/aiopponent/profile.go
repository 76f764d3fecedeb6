package aiopponent

import "strings"

// Profile tunes how fast and how fallible the AI plays.
type Profile struct {
	Personality string  `json:"personality"`
	Speed       float64 `json:"speed"`
	ErrorRate   float64 `json:"errorRate"`
	PauseChance float64 `json:"pauseChance"`
	UserWinRate float64 `json:"userWinRate"`
	Matches     int     `json:"matches"`
}

const (
	minSpeed     = 0.5
	maxSpeed     = 2.0
	minErrorRate = 0.02
	maxErrorRate = 0.15

	// Target band for the user's win rate against the AI.
	BandLow  = 0.45
	BandHigh = 0.55

	// Adjustments start once the win rate has a few samples behind it.
	MinMatchesBeforeAdjust = 3
)

var presets = map[string]Profile{
	"methodical": {Personality: "methodical", Speed: 0.7, ErrorRate: 0.05, PauseChance: 0.20, UserWinRate: 0.5},
	"balanced":   {Personality: "balanced", Speed: 1.0, ErrorRate: 0.08, PauseChance: 0.15, UserWinRate: 0.5},
	"speedster":  {Personality: "speedster", Speed: 1.4, ErrorRate: 0.12, PauseChance: 0.08, UserWinRate: 0.5},
}

// Preset returns a named profile; unknown names fall back to balanced.
func Preset(name string) Profile {
	if p, ok := presets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return presets["balanced"]
}

// AdjustProfile records one finished match and nudges the AI so the user's
// long-run win rate drifts into [BandLow, BandHigh].
func AdjustProfile(p Profile, userWon bool) Profile {
	next := p
	won := 0.0
	if userWon {
		won = 1
	}
	next.Matches = p.Matches + 1
	next.UserWinRate = (p.UserWinRate*float64(p.Matches) + won) / float64(next.Matches)

	if next.Matches < MinMatchesBeforeAdjust {
		return next
	}
	switch {
	case next.UserWinRate < BandLow:
		next.Speed = clamp(next.Speed*0.9, minSpeed, maxSpeed)
		next.ErrorRate = clamp(next.ErrorRate*1.15, minErrorRate, maxErrorRate)
	case next.UserWinRate > BandHigh:
		next.Speed = clamp(next.Speed*1.1, minSpeed, maxSpeed)
		next.ErrorRate = clamp(next.ErrorRate*0.85, minErrorRate, maxErrorRate)
	}
	return next
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
