package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/matchmaking"
	"github.com/park285/sudoku-duo/internal/matchstore"
	"github.com/park285/sudoku-duo/internal/metrics"
	"github.com/park285/sudoku-duo/internal/results"
	"github.com/park285/sudoku-duo/pkg/duodto"
	"github.com/redis/go-redis/v9"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type testEnv struct {
	srv     *httptest.Server
	store   *matchstore.Store
	metrics *metrics.Metrics
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := matchstore.New(rdb)
	mm := matchmaking.NewService(store, matchmaking.DefaultConfig())
	res := results.NewService(store, results.NewMemoryRepository())
	m := metrics.New()
	srv := httptest.NewServer(NewServer(store, mm, res, WithMetrics(m)).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store, metrics: m}
}

func (e *testEnv) do(t *testing.T, method, path, player string, in, out any) int {
	t.Helper()
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if player != "" {
		req.Header.Set(duodto.PlayerHeader, player)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s (status %d): %v", method, path, resp.StatusCode, err)
		}
	}
	return resp.StatusCode
}

// startPrivate creates and joins a private match between host and guest.
func (e *testEnv) startPrivate(t *testing.T) *domain.Match {
	t.Helper()
	var pm duodto.PrivateMatch
	status := e.do(t, http.MethodPost, "/v1/private", "", duodto.CreatePrivateRequest{
		Player:     duodto.Player{ID: "host", Name: "Hana", Rating: 1200},
		Difficulty: "easy",
	}, &pm)
	if status != http.StatusCreated {
		t.Fatalf("create status %d", status)
	}
	if pm.Code == "" || pm.JoinURL != "sudokuduo://join/"+pm.Code || !strings.Contains(pm.ShareText, pm.Code) {
		t.Fatalf("unexpected private match %+v", pm)
	}
	var m domain.Match
	status = e.do(t, http.MethodPost, "/v1/private/join", "", duodto.JoinRequest{
		Code:   pm.JoinURL,
		Player: duodto.Player{ID: "guest", Name: "Gil", Rating: 1200},
	}, &m)
	if status != http.StatusOK || m.Status != domain.StatusActive {
		t.Fatalf("join status %d match %+v", status, m.Status)
	}
	return &m
}

func oneMove(m *domain.Match) duodto.GameState {
	board := boardcodec.ToGrid(m.State.Board)
	solution := boardcodec.ToGrid(m.Solution)
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if board[r][c] == 0 {
				board[r][c] = solution[r][c]
				return duodto.GameState{
					Board:           boardcodec.ToWire(board),
					ErrorsRemaining: m.State.ErrorsRemaining,
					HintsRemaining:  m.State.HintsRemaining,
					CellsSolved:     [2]int{1, 0},
				}
			}
		}
	}
	return duodto.GameState{}
}

func TestPrivateMatchLifecycle(t *testing.T) {
	env := newEnv(t)
	m := env.startPrivate(t)

	var got domain.Match
	if status := env.do(t, http.MethodGet, "/v1/matches/"+m.ID, "", nil, &got); status != http.StatusOK || got.ID != m.ID {
		t.Fatalf("get status %d", status)
	}

	st := oneMove(m)
	var written domain.Match
	status := env.do(t, http.MethodPut, "/v1/matches/"+m.ID+"/state", "host",
		duodto.WriteStateRequest{ExpectedVersion: m.Version, State: st}, &written)
	if status != http.StatusOK || written.Version != m.Version+1 || written.State.LastMoveBy != 1 {
		t.Fatalf("write status %d version %d by %d", status, written.Version, written.State.LastMoveBy)
	}

	var conflict duodto.ErrorResponse
	status = env.do(t, http.MethodPut, "/v1/matches/"+m.ID+"/state", "guest",
		duodto.WriteStateRequest{ExpectedVersion: m.Version, State: st}, &conflict)
	if status != http.StatusConflict || conflict.Error.Code != duodto.CodeVersionConflict {
		t.Fatalf("stale write: status %d body %+v", status, conflict)
	}
	if !strings.Contains(conflict.Error.Message, "version "+strconv.FormatInt(m.Version, 10)) || !conflict.Error.Retryable {
		t.Fatalf("conflict message %+v", conflict.Error)
	}

	var notYet duodto.ErrorResponse
	if status := env.do(t, http.MethodGet, "/v1/matches/"+m.ID+"/card.png", "", nil, &notYet); status != http.StatusConflict {
		t.Fatalf("card before completion: %d", status)
	}

	var done domain.Match
	status = env.do(t, http.MethodPost, "/v1/matches/"+m.ID+"/complete", "guest",
		duodto.CompleteRequest{Winner: 2, Reason: "forfeit"}, &done)
	if status != http.StatusOK || done.Status != domain.StatusCompleted || done.Winner != 2 {
		t.Fatalf("complete status %d match %+v", status, done.Status)
	}
	// a second completion is accepted and changes nothing
	var again domain.Match
	env.do(t, http.MethodPost, "/v1/matches/"+m.ID+"/complete", "host",
		duodto.CompleteRequest{Winner: 1, Reason: "completion"}, &again)
	if again.Winner != 2 {
		t.Fatalf("winner changed on replay: %d", again.Winner)
	}

	var profile duodto.ProfileResponse
	if status := env.do(t, http.MethodGet, "/v1/players/guest", "", nil, &profile); status != http.StatusOK {
		t.Fatalf("profile status %d", status)
	}
	if profile.Profile.Wins != 1 || profile.Profile.Rating != 1200 || len(profile.History) != 1 {
		t.Fatalf("private match should count but not rate: %+v", profile)
	}

	resp, err := http.Get(env.srv.URL + "/v1/matches/" + m.ID + "/card.png")
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("card status %d type %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Fatalf("card is not a png: %v", err)
	}
}

func TestWriteRequiresParticipant(t *testing.T) {
	env := newEnv(t)
	m := env.startPrivate(t)
	var e duodto.ErrorResponse
	status := env.do(t, http.MethodPut, "/v1/matches/"+m.ID+"/state", "stranger",
		duodto.WriteStateRequest{ExpectedVersion: m.Version, State: oneMove(m)}, &e)
	if status != http.StatusForbidden || e.Error.Code != duodto.CodeNotParticipant {
		t.Fatalf("status %d body %+v", status, e)
	}
	status = env.do(t, http.MethodPost, "/v1/matches/"+m.ID+"/complete", "host",
		duodto.CompleteRequest{Winner: 3, Reason: "completion"}, &e)
	if status != http.StatusBadRequest || e.Error.Code != duodto.CodeInvalidRequest {
		t.Fatalf("bad winner: status %d body %+v", status, e)
	}
}

func TestJoinErrors(t *testing.T) {
	env := newEnv(t)
	var e duodto.ErrorResponse
	status := env.do(t, http.MethodPost, "/v1/private/join", "", duodto.JoinRequest{
		Code: "ZZZZZZ", Player: duodto.Player{ID: "p", Rating: 1000},
	}, &e)
	if status != http.StatusNotFound || e.Error.Code != duodto.CodeMatchGone {
		t.Fatalf("status %d body %+v", status, e)
	}
	if e.Error.Message == "" || e.Error.Message == e.Error.Code {
		t.Fatalf("message not rendered from catalog: %+v", e.Error)
	}
	status = env.do(t, http.MethodPost, "/v1/private/join", "", duodto.JoinRequest{
		Code: "bad", Player: duodto.Player{ID: "p", Rating: 1000},
	}, &e)
	if status != http.StatusBadRequest || e.Error.Code != duodto.CodeInvalidCode {
		t.Fatalf("status %d body %+v", status, e)
	}
}

func TestQueueEndpoints(t *testing.T) {
	env := newEnv(t)
	var qs duodto.QueueStatus
	status := env.do(t, http.MethodPost, "/v1/queue", "", duodto.EnqueueRequest{
		Player: duodto.Player{ID: "solo", Name: "Solo", Rating: 1500}, Difficulty: "hard",
	}, &qs)
	if status != http.StatusAccepted || !qs.Waiting || qs.Difficulty != "hard" {
		t.Fatalf("enqueue status %d %+v", status, qs)
	}
	if status := env.do(t, http.MethodGet, "/v1/queue/solo", "", nil, &qs); status != http.StatusOK || !qs.Waiting {
		t.Fatalf("poll status %d %+v", status, qs)
	}

	var paired duodto.QueueStatus
	env.do(t, http.MethodPost, "/v1/queue", "", duodto.EnqueueRequest{
		Player: duodto.Player{ID: "rival", Name: "Rival", Rating: 1550}, Difficulty: "hard",
	}, &paired)
	if paired.Waiting || paired.MatchID == "" {
		t.Fatalf("second player should pair: %+v", paired)
	}
	if env.do(t, http.MethodGet, "/v1/queue/solo", "", nil, &qs); qs.MatchID != paired.MatchID {
		t.Fatalf("waiting player did not learn the match: %+v", qs)
	}

	if status := env.do(t, http.MethodDelete, "/v1/queue/solo", "", nil, nil); status != http.StatusNoContent {
		t.Fatalf("leave status %d", status)
	}
	var e duodto.ErrorResponse
	if status := env.do(t, http.MethodGet, "/v1/queue/solo", "", nil, &e); status != http.StatusNotFound || e.Error.Code != duodto.CodeNotQueued {
		t.Fatalf("poll after leave: %d %+v", status, e)
	}
	var tooEarly duodto.ErrorResponse
	env.do(t, http.MethodPost, "/v1/queue", "", duodto.EnqueueRequest{Player: duodto.Player{ID: "new", Rating: 900}}, nil)
	if status := env.do(t, http.MethodPost, "/v1/queue/new/ai", "", nil, &tooEarly); status != http.StatusTooEarly {
		t.Fatalf("fallback right away: %d %+v", status, tooEarly)
	}
}

func TestFeedStreamsRevisions(t *testing.T) {
	env := newEnv(t)
	m := env.startPrivate(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/v1/matches/" + m.ID + "/feed"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	read := func() (duodto.FeedEvent, domain.Match) {
		t.Helper()
		var ev duodto.FeedEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		var doc domain.Match
		if ev.Type == duodto.FeedSnapshot {
			if err := json.Unmarshal(ev.Match, &doc); err != nil {
				t.Fatalf("decode snapshot: %v", err)
			}
		}
		return ev, doc
	}

	if ev, doc := read(); ev.Type != duodto.FeedSnapshot || doc.Version != m.Version {
		t.Fatalf("first event %s v%d", ev.Type, doc.Version)
	}
	env.do(t, http.MethodPut, "/v1/matches/"+m.ID+"/state", "host",
		duodto.WriteStateRequest{ExpectedVersion: m.Version, State: oneMove(m)}, nil)
	if ev, doc := read(); ev.Type != duodto.FeedSnapshot || doc.Version != m.Version+1 {
		t.Fatalf("second event %s v%d", ev.Type, doc.Version)
	}

	if err := env.store.Delete(context.Background(), m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ev, _ := read(); ev.Type != duodto.FeedDeleted {
		t.Fatalf("want deleted event, got %s", ev.Type)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newEnv(t)
	var health map[string]string
	if status := env.do(t, http.MethodGet, "/healthz", "", nil, &health); status != http.StatusOK || health["status"] != "ok" {
		t.Fatalf("healthz %d %v", status, health)
	}
	var e duodto.ErrorResponse
	env.do(t, http.MethodGet, "/v1/matches/missing", "", nil, &e)
	if e.Error.Code != duodto.CodeMatchNotFound {
		t.Fatalf("missing match: %+v", e)
	}

	resp, err := http.Get(env.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	var found bool
	for _, line := range strings.Split(string(body), "\n") {
		if strings.HasPrefix(line, `duo_http_requests_total{method="GET",route="/v1/matches/{matchID}`) &&
			strings.Contains(line, `status="404"`) {
			found = true
		}
	}
	if !found {
		t.Fatalf("404 on the match route not counted:\n%s", body)
	}
}
