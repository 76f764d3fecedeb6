package domain

import (
	"strings"
	"time"
)

// Grid is the dense in-memory board: rows × columns, 0 = empty.
type Grid [9][9]int

// WireBoard is the stored form of a Grid, rows keyed "0".."8".
type WireBoard map[string][]int

type Status string

const (
	StatusLobby     Status = "lobby"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusExpired   Status = "expired"
)

type MatchType string

const (
	TypeRanked  MatchType = "ranked"
	TypePrivate MatchType = "private"
	TypeAI      MatchType = "ai"
)

// Rated reports whether completed matches of this type move player ratings.
func (t MatchType) Rated() bool { return t == TypeRanked || t == TypeAI }

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// ParseDifficulty falls back to medium for unknown input.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	case DifficultyExpert:
		return DifficultyExpert
	default:
		return DifficultyMedium
	}
}

type Reason string

const (
	ReasonCompletion Reason = "completion"
	ReasonErrors     Reason = "errors"
	ReasonTimeout    Reason = "timeout"
	ReasonForfeit    Reason = "forfeit"
)

const (
	DefaultErrors = 3
	DefaultHints  = 3
)

type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Rating   int       `json:"rating"`
	IsAI     bool      `json:"isAI"`
	JoinedAt time.Time `json:"joinedAt"`
}

// GameState is the mutable part of a match that clients write.
type GameState struct {
	Board           WireBoard `json:"board"`
	ErrorsRemaining [2]int    `json:"errorsRemaining"`
	HintsRemaining  [2]int    `json:"hintsRemaining"`
	CellsSolved     [2]int    `json:"cellsSolved"`
	LastMoveAt      time.Time `json:"lastMoveAt"`
	LastMoveBy      int       `json:"lastMoveBy"`
	// WriteIDs holds, per seat, the id of that seat's last applied write.
	WriteIDs [2]string `json:"writeIds"`
}

// Match is the shared document both clients replicate.
type Match struct {
	ID         string     `json:"id"`
	Status     Status     `json:"status"`
	Type       MatchType  `json:"type"`
	Difficulty Difficulty `json:"difficulty"`
	Players    [2]Player  `json:"players"`
	HostID     string     `json:"hostId,omitempty"`
	InviteCode string     `json:"inviteCode,omitempty"`

	Initial  WireBoard `json:"initial"`
	Solution WireBoard `json:"solution"`
	State    GameState `json:"state"`

	CreatedAt   time.Time `json:"createdAt"`
	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
	ExpireAt    time.Time `json:"expireAt"`

	Winner        int            `json:"winner"`
	Reason        Reason         `json:"reason,omitempty"`
	RatingChanges map[string]int `json:"ratingChanges,omitempty"`

	Version int64 `json:"version"`
}

// PlayerNumber returns 1 or 2 for a participant, 0 otherwise.
func (m *Match) PlayerNumber(playerID string) int {
	if m == nil || strings.TrimSpace(playerID) == "" {
		return 0
	}
	for i, p := range m.Players {
		if p.ID == playerID {
			return i + 1
		}
	}
	return 0
}

// Full reports whether both seats are taken.
func (m *Match) Full() bool {
	return m != nil && m.Players[0].ID != "" && m.Players[1].ID != ""
}

// Opponent returns the other seat's player.
func (m *Match) Opponent(playerNumber int) Player {
	if playerNumber == 1 {
		return m.Players[1]
	}
	return m.Players[0]
}

// PushExpiry moves ExpireAt forward only.
func (m *Match) PushExpiry(t time.Time) {
	if t.After(m.ExpireAt) {
		m.ExpireAt = t
	}
}

// Clone deep-copies the document so callers can mutate freely.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Initial = m.Initial.Clone()
	c.Solution = m.Solution.Clone()
	c.State.Board = m.State.Board.Clone()
	if m.RatingChanges != nil {
		c.RatingChanges = make(map[string]int, len(m.RatingChanges))
		for k, v := range m.RatingChanges {
			c.RatingChanges[k] = v
		}
	}
	return &c
}

func (w WireBoard) Clone() WireBoard {
	if w == nil {
		return nil
	}
	out := make(WireBoard, len(w))
	for k, row := range w {
		out[k] = append([]int(nil), row...)
	}
	return out
}

// Ticket is a matchmaking queue entry.
type Ticket struct {
	PlayerID   string     `json:"playerId"`
	Name       string     `json:"name"`
	Rating     int        `json:"rating"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpireAt   time.Time  `json:"expireAt"`
	MatchID    string     `json:"matchId,omitempty"`
}
