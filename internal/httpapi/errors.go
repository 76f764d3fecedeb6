package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/matchmaking"
	"github.com/park285/sudoku-duo/internal/matchstore"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/internal/results"
	"github.com/park285/sudoku-duo/pkg/duodto"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("invalid request")

type apiError struct {
	status    int
	code      string
	retryable bool
}

var errorTable = []struct {
	target error
	apiError
}{
	{domain.ErrNotFound, apiError{http.StatusNotFound, duodto.CodeMatchNotFound, false}},
	{domain.ErrVersionConflict, apiError{http.StatusConflict, duodto.CodeVersionConflict, true}},
	{domain.ErrNotActive, apiError{http.StatusConflict, duodto.CodeNotActive, false}},
	{domain.ErrNotParticipant, apiError{http.StatusForbidden, duodto.CodeNotParticipant, false}},
	{matchmaking.ErrMatchGone, apiError{http.StatusNotFound, duodto.CodeMatchGone, false}},
	{matchmaking.ErrMatchFull, apiError{http.StatusConflict, duodto.CodeMatchFull, false}},
	{matchmaking.ErrSelfJoin, apiError{http.StatusConflict, duodto.CodeSelfJoin, false}},
	{matchmaking.ErrInvalidCode, apiError{http.StatusBadRequest, duodto.CodeInvalidCode, false}},
	{matchmaking.ErrInvalidRating, apiError{http.StatusBadRequest, duodto.CodeInvalidRating, false}},
	{matchmaking.ErrInvalidPlayer, apiError{http.StatusBadRequest, duodto.CodeInvalidPlayer, false}},
	{matchmaking.ErrNotQueued, apiError{http.StatusNotFound, duodto.CodeNotQueued, false}},
	{matchmaking.ErrTooEarly, apiError{http.StatusTooEarly, duodto.CodeTooEarly, true}},
	{matchstore.ErrInvalidState, apiError{http.StatusBadRequest, duodto.CodeInvalidState, false}},
	{boardcodec.ErrMalformedBoard, apiError{http.StatusBadRequest, duodto.CodeInvalidState, false}},
	{results.ErrNotCompleted, apiError{http.StatusConflict, duodto.CodeNotCompleted, false}},
	{results.ErrProfileNotFound, apiError{http.StatusNotFound, duodto.CodeProfileNotFound, false}},
	{errBadRequest, apiError{http.StatusBadRequest, duodto.CodeInvalidRequest, false}},
}

func classify(err error) apiError {
	for _, e := range errorTable {
		if errors.Is(err, e.target) {
			return e.apiError
		}
	}
	return apiError{http.StatusInternalServerError, duodto.CodeInternal, true}
}

// writeError renders err through the message catalog. data fills templated
// messages such as the version in a conflict.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, data map[string]any) {
	ae := classify(err)
	if ae.status >= http.StatusInternalServerError {
		obslog.L().Error("http_internal_error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	if data == nil {
		data = map[string]any{}
	}
	msg := s.catalog.Text("errors."+ae.code, data, err.Error())
	writeJSON(w, ae.status, duodto.ErrorResponse{Error: duodto.Error{
		Code:      ae.code,
		Message:   msg,
		Retryable: ae.retryable,
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		obslog.L().Warn("http_encode_error", zap.Error(err))
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return errBadRequest
	}
	return nil
}
