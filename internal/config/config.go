package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Datastore backends.
const (
	DatastoreMemory   = "memory"
	DatastorePostgres = "postgres"
	DatastoreSQLite   = "sqlite"
	DatastoreMongo    = "mongo"
)

// Cache backends.
const (
	CacheNone  = "none"
	CacheRedis = "redis"
)

// Config holds all application configuration
type Config struct {
	NodeEnv        string
	Port           string
	LogLevel       string
	AllowedOrigins string

	// Empty disables bearer auth on the API and the websocket upgrade.
	JWTSecret string

	DatastoreType string
	Database      DatabaseConfig
	SQLitePath    string
	Mongo         MongoConfig

	CacheType        string
	RedisURL         string
	ChatListCacheTTL time.Duration

	StatusTTL           time.Duration
	StatusSweepInterval time.Duration

	MetricsEnabled bool
	// Outbound frames buffered per connection before frames are dropped.
	SendBuffer int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// MongoConfig holds document store configuration
type MongoConfig struct {
	URI      string
	Database string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		NodeEnv:        getEnv("NODE_ENV", "development"),
		Port:           getEnv("PORT", "3000"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "*"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		DatastoreType:  strings.ToLower(getEnv("DATASTORE_TYPE", DatastoreMemory)),
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "eckchat"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
		SQLitePath: getEnv("SQLITE_PATH", "eckchat.db"),
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DATABASE", "eckchat"),
		},
		CacheType:      strings.ToLower(getEnv("CACHE_TYPE", CacheNone)),
		RedisURL:       os.Getenv("REDIS_URL"),
		MetricsEnabled: getEnv("METRICS_ENABLED", "true") == "true",
	}

	var err error
	if cfg.ChatListCacheTTL, err = getDuration("CHAT_LIST_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.StatusTTL, err = getDuration("STATUS_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.StatusSweepInterval, err = getDuration("STATUS_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SendBuffer, err = getInt("SEND_BUFFER", 256); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.DatastoreType {
	case DatastoreMemory, DatastorePostgres, DatastoreSQLite, DatastoreMongo:
	default:
		return fmt.Errorf("DATASTORE_TYPE must be one of memory, postgres, sqlite, mongo; got %q", c.DatastoreType)
	}
	switch c.CacheType {
	case CacheNone:
	case CacheRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when CACHE_TYPE=redis")
		}
	default:
		return fmt.Errorf("CACHE_TYPE must be none or redis; got %q", c.CacheType)
	}
	if c.StatusTTL <= 0 {
		return fmt.Errorf("STATUS_TTL must be positive")
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be positive")
	}
	return nil
}

// AuthEnabled reports whether bearer tokens are required.
func (c *Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
