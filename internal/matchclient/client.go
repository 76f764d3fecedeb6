// Package matchclient talks to the duo API over HTTP and the match feed over
// WebSocket. Client implements replicator.Remote so a remote player can run the
// same replicated session as the server-side AI.
package matchclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/replicator"
	"github.com/park285/sudoku-duo/pkg/duodto"
	"github.com/valyala/fasthttp"
)

var _ replicator.Remote = (*Client)(nil)

const PlayerHeader = duodto.PlayerHeader

// HeaderProvider allows injecting per-request headers
type HeaderProvider func() map[string]string

type Client struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider
	player  string

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headers = h }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithPlayer sets the player id sent with match writes and feed handshakes.
func WithPlayer(id string) Option {
	return func(c *Client) { c.player = strings.TrimSpace(id) }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Enqueue(ctx context.Context, req duodto.EnqueueRequest) (*duodto.QueueStatus, error) {
	var out duodto.QueueStatus
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/queue", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Poll(ctx context.Context, playerID string) (*duodto.QueueStatus, error) {
	var out duodto.QueueStatus
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/queue/"+url.PathEscape(playerID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Leave(ctx context.Context, playerID string) error {
	return c.doJSON(ctx, fasthttp.MethodDelete, "/v1/queue/"+url.PathEscape(playerID), nil, nil, true)
}

func (c *Client) FallbackToAI(ctx context.Context, playerID string) (*duodto.MatchRef, error) {
	var out duodto.MatchRef
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/queue/"+url.PathEscape(playerID)+"/ai", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreatePrivate(ctx context.Context, req duodto.CreatePrivateRequest) (*duodto.PrivateMatch, error) {
	var out duodto.PrivateMatch
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/private", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinPrivate(ctx context.Context, req duodto.JoinRequest) (*domain.Match, error) {
	var out domain.Match
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/v1/private/join", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Profile(ctx context.Context, playerID string) (*duodto.ProfileResponse, error) {
	var out duodto.ProfileResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/v1/players/"+url.PathEscape(playerID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Fetch(ctx context.Context, matchID string) (*domain.Match, error) {
	var out domain.Match
	if err := c.doJSON(ctx, fasthttp.MethodGet, matchPath(matchID), nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// WriteState is not retried: a lost response surfaces as a version conflict on
// the next write, which the replicator already handles.
func (c *Client) WriteState(ctx context.Context, matchID string, expectedVersion int64, st domain.GameState) (*domain.Match, error) {
	req := duodto.WriteStateRequest{
		ExpectedVersion: expectedVersion,
		State: duodto.GameState{
			Board:           st.Board,
			ErrorsRemaining: st.ErrorsRemaining,
			HintsRemaining:  st.HintsRemaining,
			CellsSolved:     st.CellsSolved,
			LastMoveAt:      st.LastMoveAt,
			LastMoveBy:      st.LastMoveBy,
			WriteIDs:        st.WriteIDs,
		},
	}
	var out domain.Match
	if err := c.doJSON(ctx, fasthttp.MethodPut, matchPath(matchID)+"/state", req, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Complete(ctx context.Context, matchID string, winner int, reason domain.Reason) (*domain.Match, error) {
	req := duodto.CompleteRequest{Winner: winner, Reason: string(reason)}
	var out domain.Match
	if err := c.doJSON(ctx, fasthttp.MethodPost, matchPath(matchID)+"/complete", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// ShareCard returns the PNG share card of a match.
func (c *Client) ShareCard(ctx context.Context, matchID string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + matchPath(matchID) + "/card.png")
	c.applyHeaders(&req.Header)
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return nil, decodeError(status, resp.Body())
	}
	return append([]byte(nil), resp.Body()...), nil
}

func matchPath(id string) string { return "/v1/matches/" + url.PathEscape(id) }

func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	uri := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	req.Header.SetContentType("application/json")
	c.applyHeaders(&req.Header)

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = c.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			err := decodeError(status, resp.Body())
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil && status != fasthttp.StatusNoContent {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (c *Client) applyHeaders(h *fasthttp.RequestHeader) {
	for k, v := range c.headerMap() {
		h.Set(k, v)
	}
}

func (c *Client) headerMap() map[string]string {
	out := map[string]string{}
	if c.headers != nil {
		for k, v := range c.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				out[k] = v
			}
		}
	}
	if c.player != "" {
		out[PlayerHeader] = c.player
	}
	return out
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
