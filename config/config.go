// Package config loads docketflow settings from an optional YAML file, a
// .env file and the process environment, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"docketflow/db"
)

type Config struct {
	Database     DatabaseConfig     `yaml:"database"`
	HTTP         HTTPConfig         `yaml:"http"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Auth         AuthConfig         `yaml:"auth"`
	Distribution DistributionConfig `yaml:"distribution"`
	Sweeper      SweeperConfig      `yaml:"sweeper"`
	Relay        RelayConfig        `yaml:"relay"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxConns        int32  `yaml:"max_conns"`
	MaxConnIdleSec  int    `yaml:"max_conn_idle_sec"`
	MaxConnLifetime int    `yaml:"max_conn_lifetime_sec"`
}

type HTTPConfig struct {
	Addr            string `yaml:"addr"`
	ShutdownTimeout int    `yaml:"shutdown_timeout_sec"`
}

type KafkaConfig struct {
	Brokers string `yaml:"brokers"` // comma separated
	Topic   string `yaml:"topic"`
}

type AuthConfig struct {
	TokenSecret string `yaml:"token_secret"`
	Issuer      string `yaml:"issuer"`
	TokenTTLMin int    `yaml:"token_ttl_min"`
}

type DistributionConfig struct {
	DefaultLimit   int    `yaml:"default_limit"`
	ParallelJudges int    `yaml:"parallel_judges"`
	// TimeZone names the IANA zone whose calendar dates go into
	// redistributed case ids.
	TimeZone       string `yaml:"time_zone"`
}

type SweeperConfig struct {
	GraceHours  int `yaml:"grace_hours"`
	MinAgeHours int `yaml:"min_age_hours"`
	Workers     int `yaml:"workers"`
}

type RelayConfig struct {
	BatchSize   int `yaml:"batch_size"`
	MaxAttempts int `yaml:"max_attempts"`
	IntervalMs  int `yaml:"interval_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

func Default() Config {
	return Config{
		Database:     DatabaseConfig{MaxConns: 16, MaxConnIdleSec: 30, MaxConnLifetime: 300},
		HTTP:         HTTPConfig{Addr: ":8080", ShutdownTimeout: 10},
		Kafka:        KafkaConfig{Brokers: "localhost:9092", Topic: "docket.distributions"},
		Auth:         AuthConfig{Issuer: "docketflow", TokenTTLMin: 60},
		Distribution: DistributionConfig{DefaultLimit: 15, ParallelJudges: 4, TimeZone: "UTC"},
		Sweeper:      SweeperConfig{GraceHours: 48, MinAgeHours: 24, Workers: 4},
		Relay:        RelayConfig{BatchSize: 50, MaxAttempts: 5, IntervalMs: 1000},
		Logging:      LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults, then applies .env and the environment.
// An empty path or a missing file leaves the defaults in place.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	_ = godotenv.Load()
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from environment variables looked up by getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("DATABASE_URL", &c.Database.URL)
	setString("HTTP_ADDR", &c.HTTP.Addr)
	setString("KAFKA_BROKERS", &c.Kafka.Brokers)
	setString("KAFKA_TOPIC", &c.Kafka.Topic)
	setString("AUTH_TOKEN_SECRET", &c.Auth.TokenSecret)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)
	setString("DISTRIBUTION_TIME_ZONE", &c.Distribution.TimeZone)

	for key, dst := range map[string]*int{
		"DISTRIBUTION_DEFAULT_LIMIT": &c.Distribution.DefaultLimit,
		"SWEEPER_GRACE_HOURS":        &c.Sweeper.GraceHours,
		"RELAY_BATCH_SIZE":           &c.Relay.BatchSize,
	} {
		if err := setInt(key, dst); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.Distribution.DefaultLimit <= 0 {
		return fmt.Errorf("config: distribution.default_limit must be positive")
	}
	if _, err := time.LoadLocation(c.Distribution.TimeZone); err != nil {
		return fmt.Errorf("config: distribution.time_zone: %w", err)
	}
	if c.Sweeper.GraceHours <= 0 {
		return fmt.Errorf("config: sweeper.grace_hours must be positive")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

func (d DatabaseConfig) PoolOptions() db.PoolOptions {
	return db.PoolOptions{
		MaxConns:        d.MaxConns,
		MaxConnIdleTime: time.Duration(d.MaxConnIdleSec) * time.Second,
		MaxConnLifetime: time.Duration(d.MaxConnLifetime) * time.Second,
	}
}

// Location resolves TimeZone, falling back to UTC when it does not load.
func (d DistributionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(d.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s SweeperConfig) Grace() time.Duration  { return time.Duration(s.GraceHours) * time.Hour }
func (s SweeperConfig) MinAge() time.Duration { return time.Duration(s.MinAgeHours) * time.Hour }

func (r RelayConfig) Interval() time.Duration { return time.Duration(r.IntervalMs) * time.Millisecond }

func (a AuthConfig) TokenTTL() time.Duration { return time.Duration(a.TokenTTLMin) * time.Minute }
