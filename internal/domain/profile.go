package domain

import "time"

type PlayerProfile struct {
	PlayerID     string
	DisplayName  string
	Rating       int
	Tier         string
	GamesPlayed  int
	Wins         int
	Losses       int
	Draws        int
	Streak       int
	StreakType   string
	LastPlayedAt time.Time
	UpdatedAt    time.Time
	CreatedAt    time.Time
}

// MatchResult is the authoritative record of a finished match.
type MatchResult struct {
	MatchID       string
	Type          MatchType
	Difficulty    Difficulty
	Winner        int
	Reason        Reason
	Player1ID     string
	Player2ID     string
	RatingChanges map[string]int
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
}

type HistoryEntry struct {
	MatchID        string
	PlayerID       string
	OpponentID     string
	OpponentName   string
	Result         string
	RatingChange   int
	Duration       time.Duration
	Difficulty     Difficulty
	Errors         int
	OpponentErrors int
	ErrorFree      bool
	PlayedAt       time.Time
}
