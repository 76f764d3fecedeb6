package duodto

import (
	"encoding/json"
	"time"
)

// Player identifies the caller. Authentication happens in front of the API.
type Player struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

type EnqueueRequest struct {
	Player     Player `json:"player"`
	Difficulty string `json:"difficulty,omitempty"`
}

// QueueStatus answers enqueue and poll calls. MatchID is set once paired.
type QueueStatus struct {
	PlayerID   string    `json:"playerId"`
	Rating     int       `json:"rating"`
	Difficulty string    `json:"difficulty"`
	Waiting    bool      `json:"waiting"`
	MatchID    string    `json:"matchId,omitempty"`
	ExpireAt   time.Time `json:"expireAt,omitempty"`
}

type PlayerRequest struct {
	PlayerID string `json:"playerId"`
}

type MatchRef struct {
	MatchID string `json:"matchId"`
	Type    string `json:"type"`
}

type CreatePrivateRequest struct {
	Player     Player `json:"player"`
	Difficulty string `json:"difficulty,omitempty"`
}

type PrivateMatch struct {
	MatchID   string    `json:"matchId"`
	Code      string    `json:"code"`
	JoinURL   string    `json:"joinUrl"`
	WebURL    string    `json:"webUrl"`
	ShareText string    `json:"shareText"`
	ExpireAt  time.Time `json:"expireAt"`
}

type JoinRequest struct {
	Code   string `json:"code"`
	Player Player `json:"player"`
}

// GameState mirrors the writable part of a match document.
type GameState struct {
	Board           map[string][]int `json:"board"`
	ErrorsRemaining [2]int           `json:"errorsRemaining"`
	HintsRemaining  [2]int           `json:"hintsRemaining"`
	CellsSolved     [2]int           `json:"cellsSolved"`
	LastMoveAt      time.Time        `json:"lastMoveAt"`
	LastMoveBy      int              `json:"lastMoveBy"`
	WriteIDs        [2]string        `json:"writeIds"`
}

type WriteStateRequest struct {
	ExpectedVersion int64     `json:"expectedVersion"`
	State           GameState `json:"state"`
}

type CompleteRequest struct {
	Winner int    `json:"winner"`
	Reason string `json:"reason"`
}

const (
	FeedSnapshot = "snapshot"
	FeedDeleted  = "deleted"
)

// FeedEvent is one message on the match WebSocket feed.
type FeedEvent struct {
	Type  string          `json:"type"`
	Match json.RawMessage `json:"match,omitempty"`
}

// PlayerHeader carries the caller's player id on match writes and feeds.
const PlayerHeader = "X-Duo-Player"
