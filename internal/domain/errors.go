package domain

// Errors shared by the store, the API and the clients.
var (
	ErrNotFound        = errf("match not found or expired")
	ErrVersionConflict = errf("match changed concurrently")
	ErrNotActive       = errf("match is not active")
	ErrNotParticipant  = errf("not a participant of this match")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }
