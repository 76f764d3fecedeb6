package matchclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/httpapi"
	"github.com/park285/sudoku-duo/internal/matchmaking"
	"github.com/park285/sudoku-duo/internal/matchstore"
	"github.com/park285/sudoku-duo/internal/replicator"
	"github.com/park285/sudoku-duo/internal/results"
	"github.com/park285/sudoku-duo/pkg/duodto"
	"github.com/redis/go-redis/v9"
)

func newAPI(t *testing.T) string {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := matchstore.New(rdb)
	srv := httptest.NewServer(httpapi.NewServer(
		store,
		matchmaking.NewService(store, matchmaking.DefaultConfig()),
		results.NewService(store, results.NewMemoryRepository()),
	).Routes())
	t.Cleanup(srv.Close)
	return srv.URL
}

// privateMatch returns a started private match plus one client per seat.
func privateMatch(t *testing.T, base string) (*domain.Match, *Client, *Client) {
	t.Helper()
	ctx := context.Background()
	host := NewClient(base, WithPlayer("host"))
	guest := NewClient(base, WithPlayer("guest"))

	pm, err := host.CreatePrivate(ctx, duodto.CreatePrivateRequest{
		Player:     duodto.Player{ID: "host", Name: "Hana", Rating: 1300},
		Difficulty: "easy",
	})
	if err != nil {
		t.Fatalf("create private: %v", err)
	}
	m, err := guest.JoinPrivate(ctx, duodto.JoinRequest{
		Code:   pm.WebURL,
		Player: duodto.Player{ID: "guest", Name: "Gil", Rating: 1250},
	})
	if err != nil {
		t.Fatalf("join private: %v", err)
	}
	return m, host, guest
}

func firstEmpty(m *domain.Match) (int, int, int) {
	board := boardcodec.ToGrid(m.State.Board)
	solution := boardcodec.ToGrid(m.Solution)
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if board[r][c] == 0 {
				return r, c, solution[r][c]
			}
		}
	}
	return -1, -1, 0
}

func withMove(m *domain.Match) domain.GameState {
	st := m.State
	board := boardcodec.ToGrid(st.Board)
	r, c, v := firstEmpty(m)
	board[r][c] = v
	st.Board = boardcodec.ToWire(board)
	st.CellsSolved = [2]int{1, 0}
	return st
}

func TestWriteStateConflictUnwraps(t *testing.T) {
	base := newAPI(t)
	m, host, guest := privateMatch(t, base)
	ctx := context.Background()

	written, err := host.WriteState(ctx, m.ID, m.Version, withMove(m))
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if written.Version != m.Version+1 || written.State.LastMoveBy != 1 {
		t.Fatalf("unexpected write result v%d by %d", written.Version, written.State.LastMoveBy)
	}

	_, err = guest.WriteState(ctx, m.ID, m.Version, withMove(m))
	if !errors.Is(err, domain.ErrVersionConflict) {
		t.Fatalf("want version conflict, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict || !apiErr.Body.Retryable {
		t.Fatalf("unexpected api error %#v", apiErr)
	}

	outsider := NewClient(base, WithPlayer("outsider"))
	if _, err := outsider.WriteState(ctx, m.ID, written.Version, withMove(written)); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("want not participant, got %v", err)
	}
	if _, err := host.Fetch(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}

func TestCompleteAndProfile(t *testing.T) {
	base := newAPI(t)
	m, host, guest := privateMatch(t, base)
	ctx := context.Background()

	done, err := host.Complete(ctx, m.ID, 1, domain.ReasonCompletion)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.StatusCompleted || done.Winner != 1 {
		t.Fatalf("unexpected completion %s winner %d", done.Status, done.Winner)
	}
	if _, err := guest.WriteState(ctx, m.ID, done.Version, withMove(m)); !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("write after completion: %v", err)
	}

	card, err := guest.ShareCard(ctx, m.ID)
	if err != nil {
		t.Fatalf("share card: %v", err)
	}
	if len(card) < 8 || string(card[1:4]) != "PNG" {
		t.Fatalf("card is not a png")
	}

	p, err := host.Profile(ctx, "host")
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if p.Profile.Wins != 1 || p.Profile.StreakType != "win" || len(p.History) != 1 {
		t.Fatalf("unexpected profile %+v", p)
	}
	if p.History[0].OpponentID != "guest" || p.History[0].RatingChange != 0 {
		t.Fatalf("unexpected history %+v", p.History[0])
	}
}

func TestRetriesOnlyIdempotentCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("upstream busy"))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"playerId":"p1","waiting":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetry(3))
	qs, err := c.Poll(context.Background(), "p1")
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !qs.Waiting || calls.Load() != 3 {
		t.Fatalf("waiting=%v after %d calls", qs.Waiting, calls.Load())
	}

	calls.Store(0)
	_, err = c.Enqueue(context.Background(), duodto.EnqueueRequest{Player: duodto.Player{ID: "p1", Rating: 1000}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("enqueue: %v", err)
	}
	if apiErr.Body.Code != duodto.CodeInternal || apiErr.Body.Message != "upstream busy" {
		t.Fatalf("non-json body not preserved: %+v", apiErr.Body)
	}
	if calls.Load() != 1 {
		t.Fatalf("enqueue retried: %d calls", calls.Load())
	}
}

func TestFeedURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":    "ws://localhost:8080/v1/matches/m%201/feed",
		"https://api.example.com/": "wss://api.example.com/v1/matches/m%201/feed",
	}
	for base, want := range cases {
		got, err := NewClient(base).FeedURL("m 1")
		if err != nil {
			t.Fatalf("%s: %v", base, err)
		}
		if got != want {
			t.Fatalf("%s: got %s want %s", base, got, want)
		}
	}
}

func TestSubscribeStreamsSnapshots(t *testing.T) {
	base := newAPI(t)
	m, host, guest := privateMatch(t, base)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snaps := make(chan *domain.Match, 8)
	errs := make(chan error, 1)
	stop, err := guest.Subscribe(ctx, m.ID,
		func(doc *domain.Match) { snaps <- doc },
		func(err error) { errs <- err },
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer stop()

	next := func() *domain.Match {
		t.Helper()
		select {
		case doc := <-snaps:
			return doc
		case err := <-errs:
			t.Fatalf("feed error: %v", err)
		case <-ctx.Done():
			t.Fatalf("timed out waiting for snapshot")
		}
		return nil
	}
	if doc := next(); doc.Version != m.Version {
		t.Fatalf("initial snapshot v%d, want v%d", doc.Version, m.Version)
	}
	if _, err := host.WriteState(ctx, m.ID, m.Version, withMove(m)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if doc := next(); doc.Version != m.Version+1 || doc.State.LastMoveBy != 1 {
		t.Fatalf("second snapshot v%d by %d", doc.Version, doc.State.LastMoveBy)
	}

	if _, err := guest.Subscribe(ctx, "missing", func(*domain.Match) {}, func(error) {}); err == nil {
		t.Fatalf("subscribing to a missing match should fail")
	}
}

func TestReplicatedSessionsOverHTTP(t *testing.T) {
	base := newAPI(t)
	m, host, guest := privateMatch(t, base)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hs, err := replicator.Attach(ctx, host, m.ID, 1)
	if err != nil {
		t.Fatalf("attach host: %v", err)
	}
	defer hs.Detach()
	gs, err := replicator.Attach(ctx, guest, m.ID, 2)
	if err != nil {
		t.Fatalf("attach guest: %v", err)
	}
	defer gs.Detach()
	for _, s := range []*replicator.Session{hs, gs} {
		select {
		case <-s.Ready():
		case <-ctx.Done():
			t.Fatalf("player %d never became ready", s.Player())
		}
	}

	r, c, v := firstEmpty(m)
	if err := hs.SubmitMove(r, c, v); err != nil {
		t.Fatalf("submit: %v", err)
	}
	for {
		view := gs.State()
		if view.Board[r][c] == v && view.LastMoveBy == 1 {
			if view.CellsSolved[0] != 1 {
				t.Fatalf("guest sees cells solved %v", view.CellsSolved)
			}
			break
		}
		select {
		case <-ctx.Done():
			t.Fatalf("guest never saw the host move: %+v", view.Board[r])
		case <-time.After(20 * time.Millisecond):
		}
	}

	stored, err := guest.Fetch(ctx, m.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if boardcodec.ToGrid(stored.State.Board)[r][c] != v {
		t.Fatalf("move not stored")
	}
}
