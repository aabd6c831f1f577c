package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the service configuration.
type Config struct {
	Postgres PostgresConfig `yaml:"postgres"`
	NATS     NATSConfig     `yaml:"nats"`
	HTTP     HTTPConfig     `yaml:"http"`
	Duel     DuelConfig     `yaml:"duel"`
}

// PostgresConfig holds Postgres configuration.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// HTTPConfig holds the HTTP listener configuration.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DuelConfig holds the duel engine tunables.
type DuelConfig struct {
	// TicketTTL is how long a matchmaking ticket stays live.
	TicketTTL time.Duration `yaml:"ticket_ttl"`
	// TimeLimit is the per-round answer budget in seconds; <= 0 disables
	// timeout enforcement.
	TimeLimit int `yaml:"time_limit"`
	// RoundsToWin is the round-win threshold for new duels.
	RoundsToWin int `yaml:"rounds_to_win"`
	// SweepInterval is the cadence of the defensive timeout sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// RatingBaseDelta, RatingUpsetBonus and RatingGapThreshold shape the
	// two-tier rating adjustment.
	RatingBaseDelta    int `yaml:"rating_base_delta"`
	RatingUpsetBonus   int `yaml:"rating_upset_bonus"`
	RatingGapThreshold int `yaml:"rating_gap_threshold"`
}

// LoadConfig loads configuration from a YAML file, then overrides with
// environment variables. A missing file falls back to env-only.
func LoadConfig(filename string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(filename); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("DUEL_TICKET_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duel.TicketTTL = d
		}
	}
	if v := os.Getenv("DUEL_TIME_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Duel.TimeLimit = n
		}
	}
	if v := os.Getenv("DUEL_ROUNDS_TO_WIN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Duel.RoundsToWin = n
		}
	}
	if v := os.Getenv("DUEL_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Duel.SweepInterval = d
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{Addr: ":8080"},
		Duel: DuelConfig{
			TicketTTL:          30 * time.Second,
			TimeLimit:          30,
			RoundsToWin:        3,
			SweepInterval:      5 * time.Second,
			RatingBaseDelta:    10,
			RatingUpsetBonus:   2,
			RatingGapThreshold: 200,
		},
	}
}

func (c *Config) validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("postgres DSN is required (config file or DATABASE_URL)")
	}
	if c.NATS.URL == "" {
		return fmt.Errorf("NATS URL is required (config file or NATS_URL)")
	}
	if c.Duel.RoundsToWin < 1 {
		return fmt.Errorf("rounds_to_win must be at least 1, got %d", c.Duel.RoundsToWin)
	}
	return nil
}
