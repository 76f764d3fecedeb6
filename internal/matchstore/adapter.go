package matchstore

import (
	"context"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/replicator"
)

var _ replicator.Remote = (*Adapter)(nil)

// Adapter lets an in-process replicator session use the store directly. Writes
// made through it are attributed to one seat.
type Adapter struct {
	store  *Store
	player int
}

func NewAdapter(store *Store, player int) *Adapter {
	return &Adapter{store: store, player: player}
}

func (a *Adapter) Subscribe(ctx context.Context, matchID string, onSnapshot func(*domain.Match), onError func(error)) (func(), error) {
	return a.store.Subscribe(ctx, matchID, onSnapshot, onError)
}

func (a *Adapter) Fetch(ctx context.Context, matchID string) (*domain.Match, error) {
	return a.store.Get(ctx, matchID)
}

func (a *Adapter) WriteState(ctx context.Context, matchID string, expectedVersion int64, st domain.GameState) (*domain.Match, error) {
	if a.player == 1 || a.player == 2 {
		st.LastMoveBy = a.player
	}
	return a.store.WriteState(ctx, matchID, expectedVersion, st)
}

func (a *Adapter) Complete(ctx context.Context, matchID string, winner int, reason domain.Reason) (*domain.Match, error) {
	return a.store.Complete(ctx, matchID, winner, reason)
}
