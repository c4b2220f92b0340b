package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	OpenAI   OpenAIConfig
	OTEL     OTELConfig
	Research ResearchConfig
	Cache    CacheConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// OpenAIConfig holds the classifier LLM configuration
type OpenAIConfig struct {
	APIKey         string
	Model          string
	RateLimitRPM   int
	RateLimitBurst int
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Enabled        bool
}

// ResearchConfig groups fan-out settings: the backend registry plus
// retry and concurrency knobs shared by all backends.
type ResearchConfig struct {
	Backends         []BackendConfig
	Retry            RetrySettings
	BatchConcurrency int
	CallTimeout      time.Duration
}

// BackendConfig holds per-backend throttle and breaker settings.
type BackendConfig struct {
	Name                   string  `yaml:"name"`
	CallsPerSecond         float64 `yaml:"callsPerSecond"`
	FailureThreshold       uint32  `yaml:"failureThreshold"`
	RecoveryTimeoutSeconds int     `yaml:"recoveryTimeoutSeconds"`
	MaxResults             int     `yaml:"maxResults"`
}

// RecoveryTimeout returns the breaker cooldown as a duration.
func (b BackendConfig) RecoveryTimeout() time.Duration {
	return time.Duration(b.RecoveryTimeoutSeconds) * time.Second
}

// RetrySettings holds retry configuration for backend calls.
type RetrySettings struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	MaxDelay      time.Duration
}

// CacheConfig holds tiered-cache freshness settings.
type CacheConfig struct {
	MaxAgeDays int
}

// MaxAge returns the freshness window as a duration.
func (c CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeDays) * 24 * time.Hour
}

// backendsFile mirrors the yaml layout of the backend registry file.
type backendsFile struct {
	Backends []BackendConfig `yaml:"backends"`
}

// Load loads configuration from environment variables. The backend
// registry is read from the yaml file named by BACKENDS_CONFIG when set,
// otherwise the built-in registry is used.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "claimlens"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		OpenAI: OpenAIConfig{
			APIKey:         getEnv("OPENAI_API_KEY", ""),
			Model:          getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			RateLimitRPM:   getEnvAsInt("OPENAI_RATE_LIMIT_RPM", 60),
			RateLimitBurst: getEnvAsInt("OPENAI_RATE_LIMIT_BURST", 5),
		},
		OTEL: OTELConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "claimlens-backend"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
			Endpoint:       getEnv("OTEL_ENDPOINT", ""),
			Enabled:        getEnvAsBool("OTEL_ENABLED", false),
		},
		Research: ResearchConfig{
			Retry: RetrySettings{
				MaxAttempts:   getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
				BaseDelay:     getEnvAsDuration("RETRY_BASE_DELAY", 1*time.Second),
				BackoffFactor: getEnvAsFloat("RETRY_BACKOFF_FACTOR", 2.0),
				MaxDelay:      getEnvAsDuration("RETRY_MAX_DELAY", 60*time.Second),
			},
			BatchConcurrency: getEnvAsInt("BATCH_CONCURRENCY", 10),
			CallTimeout:      getEnvAsDuration("BACKEND_CALL_TIMEOUT", 30*time.Second),
		},
		Cache: CacheConfig{
			MaxAgeDays: getEnvAsInt("CACHE_MAX_AGE_DAYS", 7),
		},
	}

	backends, err := loadBackends(getEnv("BACKENDS_CONFIG", ""))
	if err != nil {
		return nil, err
	}
	cfg.Research.Backends = backends

	return cfg, nil
}

// loadBackends reads the backend registry from path, falling back to the
// built-in registry when path is empty.
func loadBackends(path string) ([]BackendConfig, error) {
	if path == "" {
		return DefaultBackends(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backends config %s: %w", path, err)
	}

	var file backendsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse backends config %s: %w", path, err)
	}
	if len(file.Backends) == 0 {
		return nil, fmt.Errorf("backends config %s lists no backends", path)
	}

	for i := range file.Backends {
		applyBackendDefaults(&file.Backends[i])
	}
	return file.Backends, nil
}

// DefaultBackends returns the built-in backend registry.
func DefaultBackends() []BackendConfig {
	return []BackendConfig{
		{Name: "pubmed", CallsPerSecond: 3.0, FailureThreshold: 5, RecoveryTimeoutSeconds: 180, MaxResults: 5},
		{Name: "arxiv", CallsPerSecond: 1.0, FailureThreshold: 5, RecoveryTimeoutSeconds: 180, MaxResults: 5},
		{Name: "semantic_scholar", CallsPerSecond: 1.0, FailureThreshold: 5, RecoveryTimeoutSeconds: 180, MaxResults: 5},
		{Name: "crossref", CallsPerSecond: 1.0, FailureThreshold: 5, RecoveryTimeoutSeconds: 180, MaxResults: 3},
		{Name: "oecd", CallsPerSecond: 1.0, FailureThreshold: 5, RecoveryTimeoutSeconds: 300, MaxResults: 3},
		{Name: "world_bank", CallsPerSecond: 2.0, FailureThreshold: 5, RecoveryTimeoutSeconds: 300, MaxResults: 5},
	}
}

func applyBackendDefaults(b *BackendConfig) {
	if b.CallsPerSecond <= 0 {
		b.CallsPerSecond = 1.0
	}
	if b.FailureThreshold == 0 {
		b.FailureThreshold = 5
	}
	if b.RecoveryTimeoutSeconds <= 0 {
		b.RecoveryTimeoutSeconds = 180
	}
	if b.MaxResults <= 0 {
		b.MaxResults = 5
	}
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
