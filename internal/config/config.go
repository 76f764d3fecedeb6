package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	HTTPAddr  string `yaml:"http_addr"`
	ServerURL string `yaml:"server_url"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`

	Match      MatchConfig      `yaml:"match"`
	Matchmaker MatchmakerConfig `yaml:"matchmaker"`
	Reaper     ReaperConfig     `yaml:"reaper"`
	Replicator ReplicatorConfig `yaml:"replicator"`

	ProfileCacheSize int           `yaml:"profile_cache_size"`
	ProfileCacheTTL  time.Duration `yaml:"profile_cache_ttl"`
}

type MatchConfig struct {
	MaxErrors    int           `yaml:"max_errors"`
	MaxHints     int           `yaml:"max_hints"`
	ActiveTTL    time.Duration `yaml:"active_ttl"`
	LobbyTTL     time.Duration `yaml:"lobby_ttl"`
	CompletedTTL time.Duration `yaml:"completed_ttl"`
}

type MatchmakerConfig struct {
	TicketTTL     time.Duration `yaml:"ticket_ttl"`
	RatingWindow  int           `yaml:"rating_window"`
	AIFallback    time.Duration `yaml:"ai_fallback"`
	AIRatingDelta int           `yaml:"ai_rating_delta"`
}

type ReaperConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	BatchLimit   int           `yaml:"batch_limit"`
	LobbyTimeout time.Duration `yaml:"lobby_timeout"`
	Retention    time.Duration `yaml:"retention"`
}

type ReplicatorConfig struct {
	Tolerance    time.Duration `yaml:"tolerance"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *AppConfig {
	return &AppConfig{
		HTTPAddr:   ":8080",
		ServerURL:  "http://localhost:8080",
		KafkaTopic: "duo.match.completed",
		Match: MatchConfig{
			MaxErrors:    3,
			MaxHints:     3,
			ActiveTTL:    time.Hour,
			LobbyTTL:     10 * time.Minute,
			CompletedTTL: time.Hour,
		},
		Matchmaker: MatchmakerConfig{
			TicketTTL:     2 * time.Minute,
			RatingWindow:  200,
			AIFallback:    5 * time.Second,
			AIRatingDelta: 50,
		},
		Reaper: ReaperConfig{
			Enabled:      true,
			Interval:     time.Hour,
			BatchLimit:   500,
			LobbyTimeout: 10 * time.Minute,
			Retention:    30 * 24 * time.Hour,
		},
		Replicator: ReplicatorConfig{
			Tolerance:    2 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
		ProfileCacheSize: 1024,
		ProfileCacheTTL:  5 * time.Second,
	}
}

// Load reads .env (if present), then the optional YAML file named by CONFIG_FILE,
// then environment variables; later sources win.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *AppConfig, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	setString(&cfg.HTTPAddr, "HTTP_ADDR")
	setString(&cfg.ServerURL, "SERVER_URL")
	setString(&cfg.RedisURL, "REDIS_URL")
	setString(&cfg.DatabaseURL, "DATABASE_URL")
	setString(&cfg.KafkaTopic, "KAFKA_TOPIC")
	if v := strings.TrimSpace(os.Getenv("KAFKA_BROKERS")); v != "" {
		cfg.KafkaBrokers = splitList(v)
	}

	setInt(&cfg.Match.MaxErrors, "MATCH_MAX_ERRORS")
	setInt(&cfg.Match.MaxHints, "MATCH_MAX_HINTS")
	setDuration(&cfg.Match.ActiveTTL, "MATCH_ACTIVE_TTL")
	setDuration(&cfg.Match.LobbyTTL, "MATCH_LOBBY_TTL")
	setDuration(&cfg.Match.CompletedTTL, "MATCH_COMPLETED_TTL")

	setDuration(&cfg.Matchmaker.TicketTTL, "MATCHMAKER_TICKET_TTL")
	setInt(&cfg.Matchmaker.RatingWindow, "MATCHMAKER_RATING_WINDOW")
	setDuration(&cfg.Matchmaker.AIFallback, "MATCHMAKER_AI_FALLBACK")
	setInt(&cfg.Matchmaker.AIRatingDelta, "MATCHMAKER_AI_RATING_DELTA")

	if v := strings.TrimSpace(os.Getenv("REAPER_ENABLED")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reaper.Enabled = b
		}
	}
	setDuration(&cfg.Reaper.Interval, "REAPER_INTERVAL")
	setInt(&cfg.Reaper.BatchLimit, "REAPER_BATCH_LIMIT")
	setDuration(&cfg.Reaper.LobbyTimeout, "REAPER_LOBBY_TIMEOUT")
	setDuration(&cfg.Reaper.Retention, "REAPER_RETENTION")

	setDuration(&cfg.Replicator.Tolerance, "REPLICATOR_TOLERANCE")
	setDuration(&cfg.Replicator.WriteTimeout, "REPLICATOR_WRITE_TIMEOUT")

	setInt(&cfg.ProfileCacheSize, "PROFILE_CACHE_SIZE")
	setDuration(&cfg.ProfileCacheTTL, "PROFILE_CACHE_TTL")
}

// Validate checks the fields every binary needs.
func (c *AppConfig) Validate() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	if c.Match.MaxErrors <= 0 {
		return errors.New("match.max_errors must be positive")
	}
	if c.Match.MaxHints < 0 {
		return errors.New("match.max_hints must not be negative")
	}
	if c.Reaper.BatchLimit <= 0 {
		return errors.New("reaper.batch_limit must be positive")
	}
	if c.Reaper.Interval <= 0 {
		return errors.New("reaper.interval must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			*dst = n
		}
	}
}

// setDuration accepts Go durations ("90s") or bare seconds ("90").
func setDuration(dst *time.Duration, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		*dst = d
		return
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		*dst = time.Duration(n) * time.Second
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
