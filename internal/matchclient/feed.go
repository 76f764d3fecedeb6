package matchclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/park285/sudoku-duo/pkg/duodto"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

var ErrFeedClosed = errors.New("match feed closed")

type FeedState int

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedConnected
	FeedReconnecting
	FeedFailed
)

func (s FeedState) String() string {
	switch s {
	case FeedConnecting:
		return "connecting"
	case FeedConnected:
		return "connected"
	case FeedReconnecting:
		return "reconnecting"
	case FeedFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// Event is one decoded feed message. Deleted events carry no match.
type Event struct {
	Match   *domain.Match
	Deleted bool
}

type EventCallback func(ev Event)

type StateCallback func(state FeedState)

type eventEntry struct {
	id       int
	callback EventCallback
}

type stateEntry struct {
	id       int
	callback StateCallback
}

// feedConn is one dialed connection and the goroutines reading it.
type feedConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Feed follows one match over WebSocket. With maxReconnectAttempts > 0 it
// redials after a drop; otherwise it stays disconnected.
type Feed struct {
	wsURL   string
	headers func() map[string]string

	cur   *feedConn
	connM sync.Mutex

	state  FeedState
	stateM sync.RWMutex

	eventCbs []eventEntry
	stateCbs []stateEntry
	nextID   int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	backoff              func(attempt int) time.Duration
	pingInterval         time.Duration
	dialTimeout          time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

type FeedOption func(*Feed)

func WithFeedHeaders(h func() map[string]string) FeedOption {
	return func(f *Feed) { f.headers = h }
}

func WithPingInterval(d time.Duration) FeedOption {
	return func(f *Feed) { f.pingInterval = d }
}

func WithFeedBackoff(b func(attempt int) time.Duration) FeedOption {
	return func(f *Feed) { f.backoff = b }
}

func NewFeed(wsURL string, maxReconnectAttempts int, opts ...FeedOption) *Feed {
	f := &Feed{
		wsURL:                wsURL,
		state:                FeedDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		backoff:              backoffDuration,
		pingInterval:         30 * time.Second,
		dialTimeout:          10 * time.Second,
		stopCh:               make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.rootCtx, f.rootCancel = context.WithCancel(context.Background())
	return f
}

func (f *Feed) Connect(ctx context.Context) error {
	f.stateM.Lock()
	if f.state == FeedConnected || f.state == FeedConnecting {
		f.stateM.Unlock()
		return nil
	}
	f.stateM.Unlock()
	if f.isStopping() {
		return ErrFeedClosed
	}

	f.setState(FeedConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, f.dialTimeout)
	defer cancel()

	conn, err := f.dial(dialCtx)
	if err != nil {
		f.setState(FeedFailed)
		f.scheduleReconnect()
		return err
	}
	f.start(conn)
	return nil
}

func (f *Feed) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.buildHeaders(),
	})
	return conn, err
}

func (f *Feed) start(conn *websocket.Conn) {
	fc := &feedConn{conn: conn}
	fc.ctx, fc.cancel = context.WithCancel(f.rootCtx)

	f.connM.Lock()
	f.cur = fc
	f.connM.Unlock()
	f.setState(FeedConnected)

	f.wg.Add(2)
	go f.listen(fc)
	go f.pingLoop(fc)
}

func (f *Feed) listen(fc *feedConn) {
	defer f.wg.Done()
	for {
		var msg duodto.FeedEvent
		if err := wsjson.Read(fc.ctx, fc.conn, &msg); err != nil {
			if f.isStopping() {
				return
			}
			f.drop(fc, websocket.StatusGoingAway, "reconnect")
			return
		}

		ev, ok := decodeEvent(msg)
		if !ok {
			continue
		}
		f.cbM.RLock()
		callbacks := make([]eventEntry, len(f.eventCbs))
		copy(callbacks, f.eventCbs)
		f.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(ev)
			}
		}
	}
}

func decodeEvent(msg duodto.FeedEvent) (Event, bool) {
	switch msg.Type {
	case duodto.FeedDeleted:
		return Event{Deleted: true}, true
	case duodto.FeedSnapshot:
		var m domain.Match
		if err := json.Unmarshal(msg.Match, &m); err != nil {
			obslog.L().Warn("feed_decode_error", zap.Error(err))
			return Event{}, false
		}
		return Event{Match: &m}, true
	default:
		return Event{}, false
	}
}

func (f *Feed) pingLoop(fc *feedConn) {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	consecutivePingFailures := 0
	for {
		select {
		case <-fc.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(fc.ctx, 3*time.Second)
			err := fc.conn.Ping(ctx)
			cancel()
			if err != nil {
				consecutivePingFailures++
				if consecutivePingFailures >= 2 {
					if f.isStopping() {
						return
					}
					f.drop(fc, websocket.StatusGoingAway, "ping failure")
					return
				}
				continue
			}
			consecutivePingFailures = 0
		}
	}
}

// drop tears one connection down exactly once and starts reconnecting.
func (f *Feed) drop(fc *feedConn, code websocket.StatusCode, reason string) {
	fc.once.Do(func() {
		fc.cancel()
		_ = fc.conn.Close(code, reason)
		f.connM.Lock()
		if f.cur == fc {
			f.cur = nil
		}
		f.connM.Unlock()
		f.setState(FeedDisconnected)
		f.scheduleReconnect()
	})
}

func (f *Feed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 || f.isStopping() {
		return
	}
	f.setState(FeedReconnecting)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
			select {
			case <-f.stopCh:
				return
			case <-time.After(f.backoff(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(f.rootCtx, f.dialTimeout)
			conn, err := f.dial(dialCtx)
			cancel()
			if err != nil {
				obslog.L().Debug("feed_reconnect_error", zap.Int("attempt", attempt), zap.Error(err))
				continue
			}
			if f.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			f.start(conn)
			return
		}
		f.setState(FeedFailed)
	}()
}

func (f *Feed) OnEvent(cb EventCallback) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextID++
	f.eventCbs = append(f.eventCbs, eventEntry{id: f.nextID, callback: cb})
	return f.nextID
}

func (f *Feed) RemoveEventCallback(id int) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	for i, cb := range f.eventCbs {
		if cb.id == id {
			f.eventCbs = append(f.eventCbs[:i], f.eventCbs[i+1:]...)
			break
		}
	}
}

func (f *Feed) OnStateChange(cb StateCallback) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextID++
	f.stateCbs = append(f.stateCbs, stateEntry{id: f.nextID, callback: cb})
	return f.nextID
}

func (f *Feed) RemoveStateCallback(id int) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	for i, cb := range f.stateCbs {
		if cb.id == id {
			f.stateCbs = append(f.stateCbs[:i], f.stateCbs[i+1:]...)
			break
		}
	}
}

func (f *Feed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

func (f *Feed) setState(state FeedState) {
	f.stateM.Lock()
	f.state = state
	f.stateM.Unlock()

	f.cbM.RLock()
	callbacks := make([]stateEntry, len(f.stateCbs))
	copy(callbacks, f.stateCbs)
	f.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (f *Feed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })

	f.connM.Lock()
	fc := f.cur
	f.cur = nil
	f.connM.Unlock()
	if fc != nil {
		fc.once.Do(func() {
			_ = fc.conn.Close(websocket.StatusNormalClosure, "close")
			fc.cancel()
		})
	}
	f.rootCancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (f *Feed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

func (f *Feed) buildHeaders() http.Header {
	hdr := http.Header{}
	if f.headers == nil {
		return hdr
	}
	for k, v := range f.headers() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
