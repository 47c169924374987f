package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port int    `env:"PORT" envDefault:"8080"`
	Env  string `env:"ENV" envDefault:"development"`

	// CORS
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// Database URLs
	PostgresURL   string `env:"POSTGRES_URL"`
	SQLitePath    string `env:"SQLITE_PATH"`
	ClickHouseURL string `env:"CLICKHOUSE_URL,required"`
	RedisURL      string `env:"REDIS_URL,required"`
	ForumDSN      string `env:"FORUM_DSN"`

	// Map catalog
	MapCatalogPath string `env:"MAP_CATALOG" envDefault:"maps.yaml"`

	// Persistence worker pool
	WorkerCount   int           `env:"WORKER_COUNT" envDefault:"4"`
	QueueSize     int           `env:"QUEUE_SIZE" envDefault:"4096"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"50"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"2s"`

	// Round lifecycle
	RoundDuration   time.Duration `env:"ROUND_DURATION" envDefault:"10m"`
	PrepareDuration time.Duration `env:"PREPARE_DURATION" envDefault:"15s"`
	VoteDuration    time.Duration `env:"VOTE_DURATION" envDefault:"30s"`
	MaxNominations  int           `env:"MAX_NOMINATIONS" envDefault:"5"`
	AssistWindow    time.Duration `env:"ASSIST_WINDOW" envDefault:"15s"`

	// Progression
	WinRating        int   `env:"WIN_RATING" envDefault:"25"`
	LossRating       int   `env:"LOSS_RATING" envDefault:"20"`
	MatchExperience  int64 `env:"MATCH_EXPERIENCE" envDefault:"100"`
	ExperiencePerLvl int64 `env:"EXPERIENCE_PER_LEVEL" envDefault:"1000"`

	// Persistence retries
	LoadAttempts int `env:"LOAD_ATTEMPTS" envDefault:"3"`
	SaveAttempts int `env:"SAVE_ATTEMPTS" envDefault:"3"`
}

// Load loads configuration from environment variables, reading an optional .env first.
// It returns an error if critical configuration is missing.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	origins := cfg.AllowedOrigins[:0]
	for _, o := range cfg.AllowedOrigins {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	cfg.AllowedOrigins = origins

	if cfg.PostgresURL == "" && cfg.SQLitePath == "" {
		return nil, fmt.Errorf("missing required environment variable: POSTGRES_URL or SQLITE_PATH")
	}
	return cfg, nil
}
