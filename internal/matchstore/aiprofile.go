package matchstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/park285/sudoku-duo/internal/aiopponent"
	"github.com/redis/go-redis/v9"
)

var _ aiopponent.ProfileStore = (*Store)(nil)

// LoadAIProfile returns the adaptive AI profile tuned against one human player.
func (s *Store) LoadAIProfile(ctx context.Context, playerID string) (aiopponent.Profile, bool, error) {
	raw, err := s.rdb.Get(ctx, aiProfileKey(playerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return aiopponent.Profile{}, false, nil
	}
	if err != nil {
		return aiopponent.Profile{}, false, err
	}
	var p aiopponent.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return aiopponent.Profile{}, false, fmt.Errorf("decode ai profile %s: %w", playerID, err)
	}
	return p, true, nil
}

func (s *Store) SaveAIProfile(ctx context.Context, playerID string, p aiopponent.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, aiProfileKey(playerID), raw, 0).Err()
}
