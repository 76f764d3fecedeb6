package duodto

// Error is the body of every non-2xx API response.
type Error struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (e Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Code != "" {
		return e.Code
	}
	return "sudoku duo service error"
}

type ErrorResponse struct {
	Error Error `json:"error"`
}

// Error codes shared by the server and its clients.
const (
	CodeMatchNotFound   = "match_not_found"
	CodeMatchGone       = "match_gone"
	CodeMatchFull       = "match_full"
	CodeSelfJoin        = "self_join"
	CodeInvalidCode     = "invalid_code"
	CodeInvalidRating   = "invalid_rating"
	CodeInvalidPlayer   = "invalid_player"
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidState    = "invalid_state"
	CodeVersionConflict = "version_conflict"
	CodeNotActive       = "not_active"
	CodeNotParticipant  = "not_participant"
	CodeNotQueued       = "not_queued"
	CodeTooEarly        = "too_early"
	CodeNotCompleted    = "not_completed"
	CodeProfileNotFound = "profile_not_found"
	CodeInternal        = "internal"
)
