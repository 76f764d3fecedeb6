package results

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/sudoku-duo/internal/domain"
)

var ErrDuplicateResult = errors.New("match result already recorded")

//go:embed schema.sql
var schemaSQL string

type Repository interface {
	InsertResult(ctx context.Context, r *domain.MatchResult) error
	GetResult(ctx context.Context, matchID string) (*domain.MatchResult, error)
	GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error)
	UpsertProfile(ctx context.Context, p *domain.PlayerProfile) error
	InsertHistory(ctx context.Context, h *domain.HistoryEntry) error
	RecentHistory(ctx context.Context, playerID string, limit int) ([]*domain.HistoryEntry, error)
}

// OpenDB connects to Postgres and verifies the connection.
func OpenDB(databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the result tables when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply results schema: %w", err)
	}
	return nil
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) InsertResult(ctx context.Context, res *domain.MatchResult) error {
	if res == nil {
		return fmt.Errorf("nil match result payload")
	}
	changes, err := json.Marshal(res.RatingChanges)
	if err != nil {
		return fmt.Errorf("marshal rating_changes: %w", err)
	}
	const query = `
		INSERT INTO duo_results (
			match_id,
			match_type,
			difficulty,
			winner,
			reason,
			player1_id,
			player2_id,
			rating_changes,
			started_at,
			ended_at,
			duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11)
		ON CONFLICT (match_id) DO NOTHING`

	out, err := r.db.ExecContext(
		ctx,
		query,
		res.MatchID,
		string(res.Type),
		string(res.Difficulty),
		res.Winner,
		string(res.Reason),
		res.Player1ID,
		res.Player2ID,
		string(changes),
		nullTime(res.StartedAt),
		res.EndedAt,
		res.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	if n == 0 {
		return ErrDuplicateResult
	}
	return nil
}

func (r *repository) GetResult(ctx context.Context, matchID string) (*domain.MatchResult, error) {
	const query = `
		SELECT
			match_id,
			match_type,
			difficulty,
			winner,
			reason,
			player1_id,
			player2_id,
			rating_changes,
			started_at,
			ended_at,
			duration_ms
		FROM duo_results
		WHERE match_id = $1`

	var (
		res        domain.MatchResult
		typ        string
		difficulty string
		reason     string
		changes    []byte
		startedAt  sql.NullTime
		durationMS int64
	)
	err := r.db.QueryRowContext(ctx, query, matchID).Scan(
		&res.MatchID,
		&typ,
		&difficulty,
		&res.Winner,
		&reason,
		&res.Player1ID,
		&res.Player2ID,
		&changes,
		&startedAt,
		&res.EndedAt,
		&durationMS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select match result: %w", err)
	}
	res.Type = domain.MatchType(typ)
	res.Difficulty = domain.Difficulty(difficulty)
	res.Reason = domain.Reason(reason)
	if startedAt.Valid {
		res.StartedAt = startedAt.Time
	}
	res.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal(changes, &res.RatingChanges); err != nil {
		return nil, fmt.Errorf("unmarshal rating_changes: %w", err)
	}
	return &res, nil
}

func (r *repository) GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	const query = `
		SELECT
			player_id,
			display_name,
			rating,
			tier,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_played_at,
			updated_at,
			created_at
		FROM duo_profiles
		WHERE player_id = $1
		LIMIT 1`

	var (
		profile    domain.PlayerProfile
		lastPlayed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(
		&profile.PlayerID,
		&profile.DisplayName,
		&profile.Rating,
		&profile.Tier,
		&profile.GamesPlayed,
		&profile.Wins,
		&profile.Losses,
		&profile.Draws,
		&profile.Streak,
		&profile.StreakType,
		&lastPlayed,
		&profile.UpdatedAt,
		&profile.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select player profile: %w", err)
	}
	if lastPlayed.Valid {
		profile.LastPlayedAt = lastPlayed.Time
	}
	return &profile, nil
}

func (r *repository) UpsertProfile(ctx context.Context, p *domain.PlayerProfile) error {
	if p == nil {
		return fmt.Errorf("nil player profile payload")
	}
	const query = `
		INSERT INTO duo_profiles (
			player_id,
			display_name,
			rating,
			tier,
			games_played,
			wins,
			losses,
			draws,
			streak,
			streak_type,
			last_played_at,
			updated_at,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (player_id)
		DO UPDATE SET
			display_name = EXCLUDED.display_name,
			rating = EXCLUDED.rating,
			tier = EXCLUDED.tier,
			games_played = EXCLUDED.games_played,
			wins = EXCLUDED.wins,
			losses = EXCLUDED.losses,
			draws = EXCLUDED.draws,
			streak = EXCLUDED.streak,
			streak_type = EXCLUDED.streak_type,
			last_played_at = EXCLUDED.last_played_at,
			updated_at = NOW()`

	_, err := r.db.ExecContext(
		ctx,
		query,
		p.PlayerID,
		p.DisplayName,
		p.Rating,
		p.Tier,
		p.GamesPlayed,
		p.Wins,
		p.Losses,
		p.Draws,
		p.Streak,
		p.StreakType,
		nullTime(p.LastPlayedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert player profile: %w", err)
	}
	return nil
}

func (r *repository) InsertHistory(ctx context.Context, h *domain.HistoryEntry) error {
	if h == nil {
		return fmt.Errorf("nil history payload")
	}
	const query = `
		INSERT INTO duo_history (
			match_id,
			player_id,
			opponent_id,
			opponent_name,
			result,
			rating_change,
			duration_ms,
			difficulty,
			errors,
			opponent_errors,
			error_free,
			played_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (match_id, player_id) DO NOTHING`

	_, err := r.db.ExecContext(
		ctx,
		query,
		h.MatchID,
		h.PlayerID,
		h.OpponentID,
		h.OpponentName,
		h.Result,
		h.RatingChange,
		h.Duration.Milliseconds(),
		string(h.Difficulty),
		h.Errors,
		h.OpponentErrors,
		h.ErrorFree,
		h.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (r *repository) RecentHistory(ctx context.Context, playerID string, limit int) ([]*domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT
			match_id,
			player_id,
			opponent_id,
			opponent_name,
			result,
			rating_change,
			duration_ms,
			difficulty,
			errors,
			opponent_errors,
			error_free,
			played_at
		FROM duo_history
		WHERE player_id = $1
		ORDER BY played_at DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.HistoryEntry, 0, limit)
	for rows.Next() {
		var (
			h          domain.HistoryEntry
			durationMS int64
			difficulty string
		)
		if err := rows.Scan(
			&h.MatchID,
			&h.PlayerID,
			&h.OpponentID,
			&h.OpponentName,
			&h.Result,
			&h.RatingChange,
			&durationMS,
			&difficulty,
			&h.Errors,
			&h.OpponentErrors,
			&h.ErrorFree,
			&h.PlayedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h.Duration = time.Duration(durationMS) * time.Millisecond
		h.Difficulty = domain.Difficulty(difficulty)
		out = append(out, &h)
	}
	return out, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
