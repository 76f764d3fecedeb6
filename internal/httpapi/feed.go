package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/pkg/duodto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// feed streams the match document over WebSocket: the current revision first,
// then every stored revision. Slow readers only ever see the latest one.
func (s *Server) feed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "matchID")
	if _, err := s.store.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.originPatterns,
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("feed_accept_error", zap.String("match_id", id), zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "feed closed")
	if s.metrics != nil {
		s.metrics.FeedClients.Inc()
		defer s.metrics.FeedClients.Dec()
	}

	// CloseRead keeps answering pings and cancels ctx once the client goes away.
	ctx := conn.CloseRead(r.Context())

	latest := make(chan *domain.Match, 1)
	failed := make(chan error, 1)
	cancel, err := s.store.Subscribe(ctx, id,
		func(m *domain.Match) {
			select {
			case latest <- m:
			default:
				select {
				case <-latest:
				default:
				}
				select {
				case latest <- m:
				default:
				}
			}
		},
		func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	)
	if err != nil {
		obslog.L().Warn("feed_subscribe_error", zap.String("match_id", id), zap.Error(err))
		_ = conn.Close(websocket.StatusTryAgainLater, "subscribe failed")
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-latest:
			raw, err := json.Marshal(m)
			if err != nil {
				obslog.L().Warn("feed_encode_error", zap.String("match_id", id), zap.Error(err))
				continue
			}
			if err := s.send(ctx, conn, duodto.FeedEvent{Type: duodto.FeedSnapshot, Match: raw}); err != nil {
				return
			}
		case err := <-failed:
			if errors.Is(err, domain.ErrNotFound) {
				_ = s.send(ctx, conn, duodto.FeedEvent{Type: duodto.FeedDeleted})
				_ = conn.Close(websocket.StatusNormalClosure, "match deleted")
				return
			}
			obslog.L().Warn("feed_listener_error", zap.String("match_id", id), zap.Error(err))
			_ = conn.Close(websocket.StatusTryAgainLater, "listener failed")
			return
		}
	}
}

func (s *Server) send(ctx context.Context, conn *websocket.Conn, ev duodto.FeedEvent) error {
	wctx, cancel := context.WithTimeout(ctx, s.feedWriteTimeout)
	defer cancel()
	return wsjson.Write(wctx, conn, ev)
}
