package matchclient

import (
	"encoding/json"
	"fmt"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/pkg/duodto"
)

// APIError is a non-2xx answer from the server. It unwraps to the matching
// domain error, so errors.Is(err, domain.ErrVersionConflict) works across the wire.
type APIError struct {
	Status int
	Body   duodto.Error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("duo api error: status=%d code=%s: %s", e.Status, e.Body.Code, e.Body.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Body.Code {
	case duodto.CodeMatchNotFound, duodto.CodeMatchGone:
		return domain.ErrNotFound
	case duodto.CodeVersionConflict:
		return domain.ErrVersionConflict
	case duodto.CodeNotActive:
		return domain.ErrNotActive
	case duodto.CodeNotParticipant:
		return domain.ErrNotParticipant
	default:
		return nil
	}
}

func decodeError(status int, body []byte) error {
	var env duodto.ErrorResponse
	if err := json.Unmarshal(body, &env); err != nil || env.Error.Code == "" {
		return &APIError{Status: status, Body: duodto.Error{
			Code:      duodto.CodeInternal,
			Message:   truncate(string(body), 512),
			Retryable: shouldRetryStatus(status),
		}}
	}
	return &APIError{Status: status, Body: env.Error}
}
