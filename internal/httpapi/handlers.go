package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/park285/sudoku-duo/internal/deeplink"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/internal/results"
	"github.com/park285/sudoku-duo/internal/sharecard"
	"github.com/park285/sudoku-duo/pkg/duodto"
	"go.uber.org/zap"
)

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req duodto.EnqueueRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	d := domain.ParseDifficulty(req.Difficulty)
	res, err := s.mm.Enqueue(r.Context(), toDomainPlayer(req.Player), d)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if res.Match != nil {
		s.countCreated(res.Match)
		s.countQueue("paired")
		writeJSON(w, http.StatusOK, duodto.QueueStatus{
			PlayerID:   req.Player.ID,
			Rating:     req.Player.Rating,
			Difficulty: string(d),
			MatchID:    res.Match.ID,
		})
		return
	}
	s.countQueue("enqueued")
	writeJSON(w, http.StatusAccepted, toQueueStatus(res.Ticket))
}

func (s *Server) pollQueue(w http.ResponseWriter, r *http.Request) {
	t, err := s.mm.Poll(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, toQueueStatus(t))
}

func (s *Server) leaveQueue(w http.ResponseWriter, r *http.Request) {
	if err := s.mm.Leave(r.Context(), chi.URLParam(r, "playerID")); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	s.countQueue("left")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) fallbackToAI(w http.ResponseWriter, r *http.Request) {
	m, err := s.mm.FallbackToAI(r.Context(), chi.URLParam(r, "playerID"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if m.Type == domain.TypeAI {
		s.countCreated(m)
		s.countQueue("ai_fallback")
	}
	writeJSON(w, http.StatusOK, duodto.MatchRef{MatchID: m.ID, Type: string(m.Type)})
}

func (s *Server) createPrivate(w http.ResponseWriter, r *http.Request) {
	var req duodto.CreatePrivateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	m, err := s.mm.CreatePrivate(r.Context(), toDomainPlayer(req.Player), domain.ParseDifficulty(req.Difficulty))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	s.countCreated(m)
	code := m.InviteCode
	joinURL := deeplink.JoinURL(code)
	writeJSON(w, http.StatusCreated, duodto.PrivateMatch{
		MatchID:   m.ID,
		Code:      code,
		JoinURL:   joinURL,
		WebURL:    deeplink.WebJoinURL(code),
		ShareText: s.catalog.Text("invite.share", map[string]any{"Code": code, "URL": joinURL}, joinURL),
		ExpireAt:  m.ExpireAt,
	})
}

func (s *Server) joinPrivate(w http.ResponseWriter, r *http.Request) {
	var req duodto.JoinRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	code := req.Code
	if parsed, ok := deeplink.ParseJoin(code); ok {
		code = parsed
	}
	m, err := s.mm.JoinPrivate(r.Context(), code, toDomainPlayer(req.Player))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Get(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// seatOf resolves the caller's seat from the player header.
func (s *Server) seatOf(r *http.Request, m *domain.Match) (int, error) {
	seat := m.PlayerNumber(strings.TrimSpace(r.Header.Get(duodto.PlayerHeader)))
	if seat == 0 {
		return 0, domain.ErrNotParticipant
	}
	return seat, nil
}

func (s *Server) writeState(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "matchID")
	var req duodto.WriteStateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	m, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	seat, err := s.seatOf(r, m)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	st := toDomainState(req.State)
	st.LastMoveBy = seat
	updated, err := s.store.WriteState(r.Context(), id, req.ExpectedVersion, st)
	if err != nil {
		s.writeError(w, r, err, map[string]any{"Version": req.ExpectedVersion})
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) complete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "matchID")
	var req duodto.CompleteRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	reason := domain.Reason(req.Reason)
	if (req.Winner != 1 && req.Winner != 2) || !validReason(reason) {
		s.writeError(w, r, errBadRequest, nil)
		return
	}
	m, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if _, err := s.seatOf(r, m); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	done, err := s.store.Complete(r.Context(), id, req.Winner, reason)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	s.finalize(r, done)
	if fresh, err := s.store.Get(r.Context(), id); err == nil {
		done = fresh
	}
	writeJSON(w, http.StatusOK, done)
}

// finalize records the result once; both clients may race to complete.
func (s *Server) finalize(r *http.Request, m *domain.Match) {
	_, err := s.results.Finalize(r.Context(), m.ID)
	switch {
	case errors.Is(err, results.ErrDuplicateResult):
		return
	case err != nil:
		obslog.L().Warn("http_finalize_error", zap.String("match_id", m.ID), zap.Error(err))
		return
	}
	if s.metrics != nil {
		s.metrics.MatchesCompleted.WithLabelValues(string(m.Type), string(m.Reason)).Inc()
	}
	if s.onCompleted != nil {
		s.onCompleted(m)
	}
}

func (s *Server) card(w http.ResponseWriter, r *http.Request) {
	m, err := s.store.Get(r.Context(), chi.URLParam(r, "matchID"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	if m.Status != domain.StatusCompleted {
		s.writeError(w, r, results.ErrNotCompleted, nil)
		return
	}
	footer := "https://" + deeplink.Host
	if m.InviteCode != "" {
		footer = deeplink.WebJoinURL(m.InviteCode)
	}
	png, err := s.cards.RenderPNG(r.Context(), m, sharecard.Options{Headline: s.headline(m), Footer: footer})
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) player(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "playerID")
	p, err := s.results.Profile(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	limit := s.historyLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	history, err := s.results.History(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, duodto.ProfileResponse{Profile: toDTOProfile(p), History: toDTOHistory(history)})
}

func (s *Server) countCreated(m *domain.Match) {
	if s.metrics != nil {
		s.metrics.MatchesCreated.WithLabelValues(string(m.Type)).Inc()
	}
}

func (s *Server) countQueue(event string) {
	if s.metrics != nil {
		s.metrics.QueueEvents.WithLabelValues(event).Inc()
	}
}
