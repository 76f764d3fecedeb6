package httpapi

import (
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/rating"
	"github.com/park285/sudoku-duo/pkg/duodto"
)

func toDomainPlayer(p duodto.Player) domain.Player {
	return domain.Player{ID: p.ID, Name: p.Name, Rating: p.Rating}
}

func toDomainState(st duodto.GameState) domain.GameState {
	return domain.GameState{
		Board:           domain.WireBoard(st.Board),
		ErrorsRemaining: st.ErrorsRemaining,
		HintsRemaining:  st.HintsRemaining,
		CellsSolved:     st.CellsSolved,
		LastMoveAt:      st.LastMoveAt,
		LastMoveBy:      st.LastMoveBy,
		WriteIDs:        st.WriteIDs,
	}
}

func toQueueStatus(t *domain.Ticket) duodto.QueueStatus {
	return duodto.QueueStatus{
		PlayerID:   t.PlayerID,
		Rating:     t.Rating,
		Difficulty: string(t.Difficulty),
		Waiting:    t.MatchID == "",
		MatchID:    t.MatchID,
		ExpireAt:   t.ExpireAt,
	}
}

func toDTOProfile(p *domain.PlayerProfile) duodto.Profile {
	tier := rating.TierOf(p.Rating)
	var winRate float64
	if p.GamesPlayed > 0 {
		winRate = float64(p.Wins) / float64(p.GamesPlayed)
	}
	return duodto.Profile{
		PlayerID:     p.PlayerID,
		DisplayName:  p.DisplayName,
		Rating:       p.Rating,
		Tier:         tier.String(),
		TierColor:    tier.Color(),
		GamesPlayed:  p.GamesPlayed,
		Wins:         p.Wins,
		Losses:       p.Losses,
		Draws:        p.Draws,
		WinRate:      winRate,
		Streak:       p.Streak,
		StreakType:   p.StreakType,
		LastPlayedAt: p.LastPlayedAt,
	}
}

func toDTOHistory(list []*domain.HistoryEntry) []duodto.HistoryEntry {
	out := make([]duodto.HistoryEntry, 0, len(list))
	for _, h := range list {
		if h == nil {
			continue
		}
		out = append(out, duodto.HistoryEntry{
			MatchID:        h.MatchID,
			OpponentID:     h.OpponentID,
			OpponentName:   h.OpponentName,
			Result:         h.Result,
			RatingChange:   h.RatingChange,
			DurationMS:     h.Duration.Milliseconds(),
			Difficulty:     string(h.Difficulty),
			Errors:         h.Errors,
			OpponentErrors: h.OpponentErrors,
			ErrorFree:      h.ErrorFree,
			PlayedAt:       h.PlayedAt,
		})
	}
	return out
}

// headline is the card title: "<winner> won by <reason>".
func (s *Server) headline(m *domain.Match) string {
	if m.Winner != 1 && m.Winner != 2 {
		return s.catalog.Text("result.headline_draw", nil, "Draw")
	}
	winner := m.Players[m.Winner-1].Name
	if winner == "" {
		winner = "Player " + string(rune('0'+m.Winner))
	}
	reason := s.catalog.Text("reason."+string(m.Reason), nil, string(m.Reason))
	return s.catalog.Text("result.headline_win", map[string]any{"Winner": winner, "Reason": reason}, winner+" won")
}

func validReason(r domain.Reason) bool {
	switch r {
	case domain.ReasonCompletion, domain.ReasonErrors, domain.ReasonTimeout, domain.ReasonForfeit:
		return true
	default:
		return false
	}
}
