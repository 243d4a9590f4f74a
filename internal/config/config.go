package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// HTTPConfig is the API listener.
type HTTPConfig struct {
	Addr           string
	Mode           string
	RequestTimeout time.Duration
}

// StorageConfig selects the chat repository and user directory backend.
type StorageConfig struct {
	Driver     string
	DBURL      string
	SQLitePath string
	// MaxConns caps the Postgres pool; 0 keeps the pool default.
	MaxConns int
}

// RedisConfig is optional. When URL is empty the node runs standalone:
// in-process fan-out, memory user cache and inline background tasks.
type RedisConfig struct {
	URL string
}

// AuthConfig holds the HS256 signing key shared with the identity service.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LogConfig is passed to logging.New.
type LogConfig struct {
	Level  string
	Format string
}

// QueueConfig tunes the asynq worker.
type QueueConfig struct {
	Concurrency int
	// Queues is "name=weight,name=weight".
	Queues string
}

// MessagingConfig holds the knobs of the messaging core.
type MessagingConfig struct {
	PageSize     int
	MaxLength    int
	UserCacheTTL time.Duration
}

// RealtimeConfig tunes per-connection delivery.
type RealtimeConfig struct {
	SendBuffer int
	PingPeriod time.Duration
}

// Config is the full application configuration.
type Config struct {
	HTTP      HTTPConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Log       LogConfig
	Queue     QueueConfig
	Messaging MessagingConfig
	Realtime  RealtimeConfig
}

// DefaultConfig returns values that run a single node with no external services.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           ":8080",
			Mode:           "release",
			RequestTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     DriverMemory,
			SQLitePath: "messaging.db",
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Log:  LogConfig{Level: "info", Format: "json"},
		Queue: QueueConfig{
			Concurrency: 5,
			Queues:      "chat=3,default=1",
		},
		Messaging: MessagingConfig{
			PageSize:     20,
			MaxLength:    2000,
			UserCacheTTL: 5 * time.Minute,
		},
		Realtime: RealtimeConfig{
			SendBuffer: 128,
			PingPeriod: 30 * time.Second,
		},
	}
}

// Load reads an optional .env file (missing files are ignored) and then the
// process environment on top of DefaultConfig. Additional env files may be
// given; the first one that exists wins per key.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	d := DefaultConfig()
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_ADDR", d.HTTP.Addr)
	v.SetDefault("GIN_MODE", d.HTTP.Mode)
	v.SetDefault("REQUEST_TIMEOUT", d.HTTP.RequestTimeout)
	v.SetDefault("STORAGE_DRIVER", d.Storage.Driver)
	v.SetDefault("DB_URL", "")
	v.SetDefault("SQLITE_PATH", d.Storage.SQLitePath)
	v.SetDefault("DB_MAX_CONNS", 0)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_TTL", d.Auth.TokenTTL)
	v.SetDefault("LOG_LEVEL", d.Log.Level)
	v.SetDefault("LOG_FORMAT", d.Log.Format)
	v.SetDefault("ASYNQ_CONCURRENCY", d.Queue.Concurrency)
	v.SetDefault("ASYNQ_QUEUES", d.Queue.Queues)
	v.SetDefault("MESSAGE_PAGE_SIZE", d.Messaging.PageSize)
	v.SetDefault("MESSAGE_MAX_LENGTH", d.Messaging.MaxLength)
	v.SetDefault("USER_CACHE_TTL", d.Messaging.UserCacheTTL)
	v.SetDefault("REALTIME_SEND_BUFFER", d.Realtime.SendBuffer)
	v.SetDefault("REALTIME_PING_PERIOD", d.Realtime.PingPeriod)

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:           v.GetString("HTTP_ADDR"),
			Mode:           v.GetString("GIN_MODE"),
			RequestTimeout: v.GetDuration("REQUEST_TIMEOUT"),
		},
		Storage: StorageConfig{
			Driver:     strings.ToLower(v.GetString("STORAGE_DRIVER")),
			DBURL:      v.GetString("DB_URL"),
			SQLitePath: v.GetString("SQLITE_PATH"),
			MaxConns:   v.GetInt("DB_MAX_CONNS"),
		},
		Redis: RedisConfig{URL: v.GetString("REDIS_URL")},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			TokenTTL:  v.GetDuration("JWT_TTL"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Queue: QueueConfig{
			Concurrency: v.GetInt("ASYNQ_CONCURRENCY"),
			Queues:      v.GetString("ASYNQ_QUEUES"),
		},
		Messaging: MessagingConfig{
			PageSize:     v.GetInt("MESSAGE_PAGE_SIZE"),
			MaxLength:    v.GetInt("MESSAGE_MAX_LENGTH"),
			UserCacheTTL: v.GetDuration("USER_CACHE_TTL"),
		},
		Realtime: RealtimeConfig{
			SendBuffer: v.GetInt("REALTIME_SEND_BUFFER"),
			PingPeriod: v.GetDuration("REALTIME_PING_PERIOD"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Storage.DBURL == "" {
			errs = append(errs, errors.New("DB_URL is required when STORAGE_DRIVER=postgres"))
		}
		if c.Storage.MaxConns < 0 {
			errs = append(errs, fmt.Errorf("DB_MAX_CONNS must not be negative, got %d", c.Storage.MaxConns))
		}
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required when STORAGE_DRIVER=sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Messaging.PageSize <= 0 || c.Messaging.PageSize > 100 {
		errs = append(errs, fmt.Errorf("MESSAGE_PAGE_SIZE must be in 1..100, got %d", c.Messaging.PageSize))
	}
	if c.Messaging.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("MESSAGE_MAX_LENGTH must be positive, got %d", c.Messaging.MaxLength))
	}
	if c.Realtime.SendBuffer <= 0 {
		errs = append(errs, fmt.Errorf("REALTIME_SEND_BUFFER must be positive, got %d", c.Realtime.SendBuffer))
	}
	return errors.Join(errs...)
}
