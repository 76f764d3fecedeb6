package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrSubscriptionClosed = errors.New("match subscription closed")

// Subscribe delivers the current document and then every stored revision of it.
// A deleted or missing match is reported through onError with domain.ErrNotFound.
// Callbacks run on one goroutine; cancel stops delivery without waiting for it.
// Revisions published while the connection was down are recovered by re-reading
// the document once go-redis has resubscribed.
func (s *Store) Subscribe(ctx context.Context, id string, onSnapshot func(*domain.Match), onError func(error)) (func(), error) {
	ps := s.rdb.Subscribe(ctx, eventsChannel(id))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	go func() {
		resync := func() bool {
			m, err := s.Get(subCtx, id)
			if subCtx.Err() != nil {
				return false
			}
			if err != nil {
				onError(err)
				return false
			}
			onSnapshot(m)
			return true
		}
		if !resync() {
			return
		}

		ch := ps.ChannelWithSubscriptions()
		for {
			select {
			case <-subCtx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					if subCtx.Err() == nil {
						onError(ErrSubscriptionClosed)
					}
					return
				}
				switch msg := raw.(type) {
				case *redis.Subscription:
					if msg.Kind != "subscribe" {
						continue
					}
					obslog.L().Info("match_events_resubscribed", zap.String("match_id", id))
					if !resync() {
						return
					}
				case *redis.Message:
					if msg.Payload == deletedPayload {
						onError(domain.ErrNotFound)
						return
					}
					var doc domain.Match
					if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
						obslog.L().Warn("match_event_decode_error", zap.String("match_id", id), zap.Error(err))
						continue
					}
					onSnapshot(&doc)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
		})
	}, nil
}
