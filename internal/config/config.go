package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the mindvault server and worker.
type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Jobs    JobsConfig
	Worker  WorkerConfig
	Auth    AuthConfig
	Indexer IndexerConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
}

type RedisConfig struct {
	URL string
}

type JobsConfig struct {
	JobTTL        time.Duration
	ResultTTL     time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

type WorkerConfig struct {
	MaxConcurrentJobs int
	PollInterval      time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type IndexerConfig struct {
	BaseURL string
	Timeout time.Duration
}

// Load reads configuration from the environment (and a .env file when
// present) and returns a validated Config.
func Load() (*Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("MINDVAULT_PORT", 8080),
			Env:               envString("MINDVAULT_ENV", "development"),
			RequestsPerMinute: envInt("MINDVAULT_RATE_LIMIT_RPM", 60),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Jobs: JobsConfig{
			JobTTL:        envDuration("JOB_TTL", 24*time.Hour),
			ResultTTL:     envDuration("JOB_RESULT_TTL", time.Hour),
			MaxRetries:    envInt("JOB_MAX_RETRIES", 3),
			RetryDelay:    envDuration("JOB_RETRY_DELAY", 60*time.Second),
			MaxRetryDelay: envDuration("JOB_MAX_RETRY_DELAY", 15*time.Minute),
		},
		Worker: WorkerConfig{
			MaxConcurrentJobs: envInt("WORKER_MAX_CONCURRENT_JOBS", 5),
			PollInterval:      envDuration("WORKER_POLL_INTERVAL", 2*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Indexer: IndexerConfig{
			BaseURL: os.Getenv("INDEXER_BASE_URL"),
			Timeout: envDuration("INDEXER_TIMEOUT", 60*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.Env != "development" && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in %s", c.Server.Env)
	}

	if c.Indexer.BaseURL == "" {
		return fmt.Errorf("INDEXER_BASE_URL is required")
	}
	if !strings.HasPrefix(c.Indexer.BaseURL, "http://") && !strings.HasPrefix(c.Indexer.BaseURL, "https://") {
		return fmt.Errorf("INDEXER_BASE_URL must start with http:// or https://, got %q", c.Indexer.BaseURL)
	}

	if c.Jobs.MaxRetries < 0 {
		return fmt.Errorf("JOB_MAX_RETRIES must be non-negative, got %d", c.Jobs.MaxRetries)
	}
	if c.Worker.MaxConcurrentJobs < 1 {
		return fmt.Errorf("WORKER_MAX_CONCURRENT_JOBS must be at least 1, got %d", c.Worker.MaxConcurrentJobs)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
