package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string `validate:"required,numeric"`
	Env  string `validate:"oneof=development staging production"`

	// Logging
	LogLevel  string
	LogFormat string `validate:"oneof=json console pretty"`

	// Replay pipeline
	Dataset DatasetConfig
	Replay  ReplayConfig
	Session SessionConfig

	// Infrastructure
	Database DatabaseConfig
	Redis    RedisConfig
}

// DatasetConfig selects where the static sales dataset is loaded from
type DatasetConfig struct {
	Source string `validate:"oneof=csv http postgres"`
	Path   string `validate:"required_if=Source csv"`
	URL    string `validate:"required_if=Source http,omitempty,url"`
	Table  string `validate:"required_if=Source postgres"`
}

// ReplayConfig controls the per-session replay loop
type ReplayConfig struct {
	Retention    string    `validate:"oneof=sliding unbounded"`
	WindowSize   int       `validate:"gte=0"`
	UpdateEvery  int       `validate:"gte=1"`
	Speed        float64   `validate:"gte=0"` // seconds between rows
	SpeedOptions []float64 `validate:"min=1,dive,gt=0"`
}

// SpeedDelay converts a speed in seconds to the delay between two rows
func SpeedDelay(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// AllowsSpeed reports whether speed is one of the configured options
func (r ReplayConfig) AllowsSpeed(speed float64) bool {
	for _, opt := range r.SpeedOptions {
		if opt == speed {
			return true
		}
	}
	return false
}

// SessionConfig controls the session registry
type SessionConfig struct {
	MaxSessions     int           `validate:"gte=1"`
	IdleTTL         time.Duration `validate:"gt=0"`
	JanitorSchedule string        `validate:"required"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	TTL      time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only caller of os.Getenv
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		Dataset: DatasetConfig{
			Source: strings.ToLower(getEnv("DATASET_SOURCE", "csv")),
			Path:   getEnv("DATASET_PATH", "data/online_retail.csv"),
			URL:    getEnv("DATASET_URL", ""),
			Table:  getEnv("DATASET_TABLE", "online_retail"),
		},

		Replay: ReplayConfig{
			Retention:    strings.ToLower(getEnv("REPLAY_RETENTION", "sliding")),
			WindowSize:   getEnvAsInt("REPLAY_WINDOW_SIZE", 200),
			UpdateEvery:  getEnvAsInt("REPLAY_UPDATE_EVERY", 5),
			Speed:        getEnvAsFloat("REPLAY_SPEED", 0.5),
			SpeedOptions: getEnvAsFloats("REPLAY_SPEED_OPTIONS", []float64{1.0, 0.8, 0.5, 0.3}),
		},

		Session: SessionConfig{
			MaxSessions:     getEnvAsInt("SESSION_MAX", 16),
			IdleTTL:         getEnvAsDuration("SESSION_IDLE_TTL", "30m"),
			JanitorSchedule: getEnv("SESSION_JANITOR_SCHEDULE", "0 */5 * * * *"),
		},

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 4),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 1),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			TTL:      getEnvAsDuration("REDIS_SNAPSHOT_TTL", "1m"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile reads an explicit env file, then the environment
// Variables already set in the process win over the file
func LoadFile(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return Load()
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the rules that span sections
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}

	// The postgres dataset source needs a database
	if c.Dataset.Source == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required when DATASET_SOURCE=postgres")
	}

	if c.Replay.Speed > 0 && !c.Replay.AllowsSpeed(c.Replay.Speed) {
		return fmt.Errorf("REPLAY_SPEED %v is not one of REPLAY_SPEED_OPTIONS %v", c.Replay.Speed, c.Replay.SpeedOptions)
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
		"backend/.env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsFloats parses a comma separated list, falling back on any bad entry
func getEnvAsFloats(key string, defaultValue []float64) []float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	parts := strings.Split(valueStr, ",")
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		values = append(values, v)
	}

	return values
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
