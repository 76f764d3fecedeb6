package replicator

import (
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"go.uber.org/zap"
)

type stateEntry struct {
	id       int
	callback func(View)
}

type connEntry struct {
	id       int
	callback func(ConnState)
}

type completeEntry struct {
	id       int
	callback func(Completion)
}

func (s *Session) OnStateChange(cb func(View)) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCB++
	s.stateCbs = append(s.stateCbs, stateEntry{id: s.nextCB, callback: cb})
	return s.nextCB
}

func (s *Session) OnConnectionStateChange(cb func(ConnState)) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCB++
	s.connCbs = append(s.connCbs, connEntry{id: s.nextCB, callback: cb})
	return s.nextCB
}

// OnComplete fires at most once per session.
func (s *Session) OnComplete(cb func(Completion)) int {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	s.nextCB++
	s.completeCbs = append(s.completeCbs, completeEntry{id: s.nextCB, callback: cb})
	return s.nextCB
}

// RemoveCallback unregisters a callback of any kind by id.
func (s *Session) RemoveCallback(id int) {
	s.cbM.Lock()
	defer s.cbM.Unlock()
	for i, e := range s.stateCbs {
		if e.id == id {
			s.stateCbs = append(s.stateCbs[:i], s.stateCbs[i+1:]...)
			return
		}
	}
	for i, e := range s.connCbs {
		if e.id == id {
			s.connCbs = append(s.connCbs[:i], s.connCbs[i+1:]...)
			return
		}
	}
	for i, e := range s.completeCbs {
		if e.id == id {
			s.completeCbs = append(s.completeCbs[:i], s.completeCbs[i+1:]...)
			return
		}
	}
}

func (s *Session) snapshotView() View {
	v := View{
		MatchID:         s.matchID,
		Player:          s.player,
		Conn:            s.conn,
		Board:           s.local.board,
		Initial:         s.initial,
		Solution:        s.solution,
		ErrorsRemaining: s.local.errors,
		HintsRemaining:  s.local.hints,
		CellsSolved:     s.local.solved,
		LastMoveAt:      s.local.lastMoveAt,
		LastMoveBy:      s.local.lastMoveBy,
		Version:         s.baseVersion,
		Pending:         len(s.pending),
		Gone:            s.gone,
	}
	if s.doc != nil {
		v.Status = s.doc.Status
		v.Players = s.doc.Players
		v.Winner = s.doc.Winner
		v.Reason = s.doc.Reason
	}
	return v
}

func (s *Session) emitState() {
	v := s.snapshotView()
	s.viewM.Lock()
	s.view = v
	s.viewM.Unlock()

	if s.detached.Load() {
		return
	}
	s.cbM.RLock()
	callbacks := make([]stateEntry, len(s.stateCbs))
	copy(callbacks, s.stateCbs)
	s.cbM.RUnlock()
	for _, e := range callbacks {
		if e.callback != nil && !s.detached.Load() {
			e.callback(v)
		}
	}
}

func (s *Session) setConn(c ConnState) {
	if s.conn == c {
		return
	}
	s.conn = c
	s.viewM.Lock()
	s.view.Conn = c
	s.viewM.Unlock()

	if s.detached.Load() {
		return
	}
	s.cbM.RLock()
	callbacks := make([]connEntry, len(s.connCbs))
	copy(callbacks, s.connCbs)
	s.cbM.RUnlock()
	for _, e := range callbacks {
		if e.callback != nil && !s.detached.Load() {
			e.callback(c)
		}
	}
}

func (s *Session) emitCompletion(m *domain.Match) {
	if s.completed {
		return
	}
	s.completed = true
	obslog.L().Info("replicator_complete",
		zap.String("match_id", s.matchID),
		zap.Int("player", s.player),
		zap.Int("winner", m.Winner),
		zap.String("reason", string(m.Reason)),
	)
	if s.detached.Load() {
		return
	}
	ev := Completion{MatchID: s.matchID, Winner: m.Winner, Reason: m.Reason, Match: m.Clone()}
	s.cbM.RLock()
	callbacks := make([]completeEntry, len(s.completeCbs))
	copy(callbacks, s.completeCbs)
	s.cbM.RUnlock()
	for _, e := range callbacks {
		if e.callback != nil && !s.detached.Load() {
			e.callback(ev)
		}
	}
}
