// Package matchstore keeps match documents, their lifecycle indexes and the
// matchmaking queue in Redis.
package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrExists       = errors.New("match id already taken")
	ErrInvalidState = errors.New("state rewrites a given clue")
)

const maxTxRetries = 8

type Options struct {
	ActiveTTL    time.Duration
	CompletedTTL time.Duration
	Now          func() time.Time
}

type Option func(*Options)

func WithActiveTTL(d time.Duration) Option    { return func(o *Options) { o.ActiveTTL = d } }
func WithCompletedTTL(d time.Duration) Option { return func(o *Options) { o.CompletedTTL = d } }
func WithClock(now func() time.Time) Option   { return func(o *Options) { o.Now = now } }

type Store struct {
	rdb  *redis.Client
	opts Options
}

func New(rdb *redis.Client, opts ...Option) *Store {
	o := Options{ActiveTTL: time.Hour, CompletedTTL: time.Hour, Now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Store{rdb: rdb, opts: o}
}

// Open connects to REDIS_URL and verifies the connection.
func Open(ctx context.Context, redisURL string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for match store")
	}
	ro, err := ParseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, opts...), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Ping is used by health checks.
func (s *Store) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *Store) now() time.Time { return s.opts.Now().UTC() }

// Create stores a new match. The id must be unused.
func (s *Store) Create(ctx context.Context, m *domain.Match) error {
	if m == nil || strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("match id required")
	}
	if m.Version == 0 {
		m.Version = 1
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	ok, err := s.rdb.SetNX(ctx, matchKey(m.ID), raw, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	pipe := s.rdb.TxPipeline()
	indexMatch(ctx, pipe, m)
	if m.InviteCode != "" {
		pipe.Set(ctx, inviteKey(m.InviteCode), m.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	obslog.L().Info("match_create",
		zap.String("match_id", m.ID),
		zap.String("type", string(m.Type)),
		zap.String("status", string(m.Status)),
		zap.String("difficulty", string(m.Difficulty)),
	)
	s.publish(ctx, m.ID, raw)
	return nil
}

// Get returns domain.ErrNotFound for a missing document.
func (s *Store) Get(ctx context.Context, id string) (*domain.Match, error) {
	raw, err := s.rdb.Get(ctx, matchKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m domain.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode match %s: %w", id, err)
	}
	return &m, nil
}

// ResolveInvite maps an invite code to its match id.
func (s *Store) ResolveInvite(ctx context.Context, code string) (string, error) {
	id, err := s.rdb.Get(ctx, inviteKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	return id, err
}

// Update applies fn to the current document under WATCH and bumps the version.
// fn errors abort the update and are returned unchanged.
func (s *Store) Update(ctx context.Context, id string, fn func(m *domain.Match) error) (*domain.Match, error) {
	key := matchKey(id)
	var out *domain.Match
	var raw []byte
	txf := func(tx *redis.Tx) error {
		cur, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(cur); err != nil {
			return err
		}
		cur.Version++
		raw, err = json.Marshal(cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			indexMatch(ctx, pipe, cur)
			return nil
		})
		if err != nil {
			return err
		}
		out = cur
		return nil
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			s.publish(ctx, id, raw)
			return out, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
	}
	obslog.L().Warn("match_update_contended", zap.String("match_id", id))
	return nil, domain.ErrVersionConflict
}

// WriteState replaces the mutable game state if the stored version still equals
// expectedVersion. The server stamps LastMoveAt and pushes the expiry forward.
func (s *Store) WriteState(ctx context.Context, id string, expectedVersion int64, st domain.GameState) (*domain.Match, error) {
	return s.Update(ctx, id, func(m *domain.Match) error {
		if m.Status != domain.StatusActive {
			return domain.ErrNotActive
		}
		if m.Version != expectedVersion {
			return domain.ErrVersionConflict
		}
		if err := boardcodec.Validate(st.Board); err != nil {
			return err
		}
		if !keepsGivens(boardcodec.ToGrid(m.Initial), boardcodec.ToGrid(st.Board)) {
			return ErrInvalidState
		}
		// Only the writer's id slot moves; the other seat keeps its last write.
		ids := m.State.WriteIDs
		if seat := st.LastMoveBy; seat == 1 || seat == 2 {
			ids[seat-1] = st.WriteIDs[seat-1]
		}
		now := s.now()
		m.State = domain.GameState{
			Board:           boardcodec.ToWire(boardcodec.ToGrid(st.Board)),
			ErrorsRemaining: clampPair(st.ErrorsRemaining),
			HintsRemaining:  clampPair(st.HintsRemaining),
			CellsSolved:     clampPair(st.CellsSolved),
			LastMoveAt:      now,
			LastMoveBy:      st.LastMoveBy,
			WriteIDs:        ids,
		}
		m.PushExpiry(now.Add(s.opts.ActiveTTL))
		return nil
	})
}

// Complete finishes an active match. Completing an already completed match is a
// no-op that returns the stored document, so both clients may race to call it.
func (s *Store) Complete(ctx context.Context, id string, winner int, reason domain.Reason) (*domain.Match, error) {
	if winner != 1 && winner != 2 {
		return nil, fmt.Errorf("invalid winner %d", winner)
	}
	var already *domain.Match
	m, err := s.Update(ctx, id, func(m *domain.Match) error {
		switch m.Status {
		case domain.StatusCompleted:
			already = m
			return errAlreadyCompleted
		case domain.StatusActive:
		default:
			return domain.ErrNotActive
		}
		now := s.now()
		m.Status = domain.StatusCompleted
		m.Winner = winner
		m.Reason = reason
		m.CompletedAt = now
		m.PushExpiry(now.Add(s.opts.CompletedTTL))
		return nil
	})
	if errors.Is(err, errAlreadyCompleted) {
		return already, nil
	}
	if err != nil {
		return nil, err
	}
	obslog.L().Info("match_complete",
		zap.String("match_id", id),
		zap.Int("winner", winner),
		zap.String("reason", string(reason)),
	)
	return m, nil
}

var errAlreadyCompleted = errors.New("already completed")

// Delete removes a match and its index entries. A missing match is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	m, err := s.Get(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, matchKey(id))
	pipe.ZRem(ctx, keyExpireIdx, id)
	pipe.ZRem(ctx, keyLobbyIdx, id)
	pipe.ZRem(ctx, keyCompletedIdx, id)
	if m != nil && m.InviteCode != "" {
		pipe.Del(ctx, inviteKey(m.InviteCode))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if m != nil {
		s.publish(ctx, id, []byte(deletedPayload))
	}
	return nil
}

// ExpiredMatches lists ids whose expireAt is at or before now.
func (s *Store) ExpiredMatches(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.rangeBefore(ctx, keyExpireIdx, now, limit)
}

// StaleLobbies lists lobby ids created at or before cutoff.
func (s *Store) StaleLobbies(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.rangeBefore(ctx, keyLobbyIdx, cutoff, limit)
}

// CompletedBefore lists completed ids finished at or before cutoff.
func (s *Store) CompletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	return s.rangeBefore(ctx, keyCompletedIdx, cutoff, limit)
}

func (s *Store) rangeBefore(ctx context.Context, key string, t time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(t.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
}

func (s *Store) load(ctx context.Context, tx *redis.Tx, key string) (*domain.Match, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var m domain.Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &m, nil
}

func (s *Store) publish(ctx context.Context, id string, payload []byte) {
	if err := s.rdb.Publish(ctx, eventsChannel(id), payload).Err(); err != nil {
		obslog.L().Warn("match_publish_error", zap.String("match_id", id), zap.Error(err))
	}
}

func indexMatch(ctx context.Context, pipe redis.Pipeliner, m *domain.Match) {
	pipe.ZAdd(ctx, keyExpireIdx, redis.Z{Score: float64(m.ExpireAt.UnixMilli()), Member: m.ID})
	if m.Status == domain.StatusLobby {
		pipe.ZAdd(ctx, keyLobbyIdx, redis.Z{Score: float64(m.CreatedAt.UnixMilli()), Member: m.ID})
	} else {
		pipe.ZRem(ctx, keyLobbyIdx, m.ID)
	}
	if m.Status == domain.StatusCompleted {
		pipe.ZAdd(ctx, keyCompletedIdx, redis.Z{Score: float64(m.CompletedAt.UnixMilli()), Member: m.ID})
	}
}

func keepsGivens(initial, board domain.Grid) bool {
	for r := 0; r < 9; r++ {
		for c := 0; c < 9; c++ {
			if initial[r][c] != 0 && board[r][c] != initial[r][c] {
				return false
			}
		}
	}
	return true
}

func clampPair(v [2]int) [2]int {
	for i := range v {
		if v[i] < 0 {
			v[i] = 0
		}
	}
	return v
}

// ParseRedisURL converts redis://[:pass@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
