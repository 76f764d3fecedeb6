package duodto

import "time"

type Profile struct {
	PlayerID     string    `json:"playerId"`
	DisplayName  string    `json:"displayName"`
	Rating       int       `json:"rating"`
	Tier         string    `json:"tier"`
	TierColor    string    `json:"tierColor"`
	GamesPlayed  int       `json:"gamesPlayed"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Draws        int       `json:"draws"`
	WinRate      float64   `json:"winRate"`
	Streak       int       `json:"streak"`
	StreakType   string    `json:"streakType,omitempty"`
	LastPlayedAt time.Time `json:"lastPlayedAt,omitempty"`
}

type HistoryEntry struct {
	MatchID        string    `json:"matchId"`
	OpponentID     string    `json:"opponentId"`
	OpponentName   string    `json:"opponentName"`
	Result         string    `json:"result"`
	RatingChange   int       `json:"ratingChange"`
	DurationMS     int64     `json:"durationMs"`
	Difficulty     string    `json:"difficulty"`
	Errors         int       `json:"errors"`
	OpponentErrors int       `json:"opponentErrors"`
	ErrorFree      bool      `json:"errorFree"`
	PlayedAt       time.Time `json:"playedAt"`
}

type ProfileResponse struct {
	Profile Profile        `json:"profile"`
	History []HistoryEntry `json:"history"`
}
