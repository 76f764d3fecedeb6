package matchclient

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
)

// FeedURL maps the API base URL to the match's WebSocket feed.
func (c *Client) FeedURL(matchID string) (string, error) {
	u, err := url.Parse(c.baseURL + matchPath(matchID) + "/feed")
	if err != nil {
		return "", fmt.Errorf("feed url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String(), nil
}

// NewFeed returns a reconnecting feed for a match, carrying the client's headers.
func (c *Client) NewFeed(matchID string, maxReconnectAttempts int, opts ...FeedOption) (*Feed, error) {
	wsURL, err := c.FeedURL(matchID)
	if err != nil {
		return nil, err
	}
	opts = append([]FeedOption{WithFeedHeaders(c.headerMap)}, opts...)
	return NewFeed(wsURL, maxReconnectAttempts, opts...), nil
}

// Subscribe opens a non-reconnecting feed; the replicator owns reconnection.
// A drop is reported once through onError. The returned cancel does not wait
// for the feed goroutines.
func (c *Client) Subscribe(ctx context.Context, matchID string, onSnapshot func(*domain.Match), onError func(error)) (func(), error) {
	feed, err := c.NewFeed(matchID, 0)
	if err != nil {
		return nil, err
	}

	var (
		closed   atomic.Bool
		live     atomic.Bool
		failOnce sync.Once
	)
	fail := func(err error) {
		failOnce.Do(func() { onError(err) })
	}
	feed.OnEvent(func(ev Event) {
		if closed.Load() {
			return
		}
		if ev.Deleted {
			fail(domain.ErrNotFound)
			return
		}
		onSnapshot(ev.Match)
	})
	feed.OnStateChange(func(s FeedState) {
		if closed.Load() {
			return
		}
		switch s {
		case FeedConnected:
			live.Store(true)
		case FeedDisconnected, FeedFailed:
			// a failed first dial is returned from Subscribe instead
			if live.Load() {
				fail(ErrFeedClosed)
			}
		}
	})

	if err := feed.Connect(ctx); err != nil {
		closed.Store(true)
		_ = feed.Close(context.Background())
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			closed.Store(true)
			go func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = feed.Close(closeCtx)
			}()
		})
	}, nil
}
