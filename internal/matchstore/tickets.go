package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrTicketNotFound = errors.New("matchmaking ticket not found")

// PutTicket stores a ticket and makes it claimable in the rating-ordered queue.
func (s *Store) PutTicket(ctx context.Context, t *domain.Ticket) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, ticketKey(t.PlayerID), raw, 0)
	if t.MatchID == "" {
		pipe.ZAdd(ctx, keyQueue, redis.Z{Score: float64(t.Rating), Member: t.PlayerID})
	} else {
		pipe.ZRem(ctx, keyQueue, t.PlayerID)
	}
	pipe.ZAdd(ctx, keyTicketIdx, redis.Z{Score: float64(t.ExpireAt.UnixMilli()), Member: t.PlayerID})
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetTicket(ctx context.Context, playerID string) (*domain.Ticket, error) {
	raw, err := s.rdb.Get(ctx, ticketKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	var t domain.Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", playerID, err)
	}
	return &t, nil
}

// ClaimTicket removes a waiting ticket from the queue. Only one caller can win
// the claim for a given player.
func (s *Store) ClaimTicket(ctx context.Context, playerID string) (bool, error) {
	n, err := s.rdb.ZRem(ctx, keyQueue, playerID).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteTicket drops the ticket everywhere. A missing ticket is not an error.
func (s *Store) DeleteTicket(ctx context.Context, playerID string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, ticketKey(playerID))
	pipe.ZRem(ctx, keyQueue, playerID)
	pipe.ZRem(ctx, keyTicketIdx, playerID)
	_, err := pipe.Exec(ctx)
	return err
}

// ExpiredTickets lists player ids whose ticket expired at or before now.
func (s *Store) ExpiredTickets(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.rangeBefore(ctx, keyTicketIdx, now, limit)
}

// QueueRange returns waiting tickets with rating in [min, max], lowest rating first.
// Entries whose ticket body is gone are skipped.
func (s *Store) QueueRange(ctx context.Context, min, max int) ([]domain.Ticket, error) {
	ids, err := s.rdb.ZRangeByScore(ctx, keyQueue, &redis.ZRangeBy{
		Min: strconv.Itoa(min),
		Max: strconv.Itoa(max),
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTicket(ctx, id)
		if errors.Is(err, ErrTicketNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}
