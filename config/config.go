package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/redis/go-redis/v9"
)

const (
	BackendSQLite = "sqlite"
	BackendTables = "tables"
)

type Server struct {
	Debug        bool          `env:"DEBUG" env-default:"false"`
	Port         string        `env:"BOARD_API_PORT" env-default:"8080"`
	AllowOrigins []string      `env:"CORS_ALLOW_ORIGINS" env-separator:"," env-default:"*"`
	ShutdownWait time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`

	Storage Storage
	Redis   Redis
	Outbox  Outbox
}

type Storage struct {
	Backend         string `env:"STORAGE_BACKEND" env-default:"sqlite"`
	SQLitePath      string `env:"SQLITE_PATH" env-default:"board.db"`
	ConnString      string `env:"STORAGE_CONNECTION_STRING"`
	CategoriesTable string `env:"CATEGORIES_TABLE" env-default:"qualitytaskcategories"`
	TasksTable      string `env:"TASKS_TABLE" env-default:"qualitytasks"`
	EventsQueue     string `env:"BOARD_EVENTS_QUEUE"`
	QueueWorkers    int    `env:"BOARD_EVENTS_QUEUE_CONCURRENCY" env-default:"4"`
}

type Redis struct {
	// ConnString accepts a redis:// URL or "host:port,password=...,ssl=true".
	ConnString   string        `env:"REDIS_CONNECTION_STRING"`
	CacheTTL     time.Duration `env:"BOARD_CACHE_TTL" env-default:"30s"`
	DeduperTTL   time.Duration `env:"DEDUPER_TTL" env-default:"24h"`
	RelayChannel string        `env:"BOARD_EVENTS_CHANNEL" env-default:"board:events"`
}

type Outbox struct {
	Workers        int           `env:"OUTBOX_WORKERS" env-default:"4"`
	Buffer         int           `env:"OUTBOX_BUFFER"`
	PublishTimeout time.Duration `env:"OUTBOX_PUBLISH_TIMEOUT" env-default:"10s"`
	HandoffTimeout time.Duration `env:"OUTBOX_HANDOFF_TIMEOUT" env-default:"50ms"`
	MaxAttempts    int           `env:"OUTBOX_MAX_ATTEMPTS" env-default:"5"`
	Heartbeat      time.Duration `env:"SSE_HEARTBEAT" env-default:"25s"`
}

type Client struct {
	Debug   bool          `env:"DEBUG" env-default:"false"`
	BaseURL string        `env:"BOARD_API_URL" env-default:"http://localhost:8080"`
	Timeout time.Duration `env:"BOARD_API_TIMEOUT" env-default:"15s"`
}

// LoadServer reads the API server settings from the environment.
func LoadServer() (Server, error) {
	var cfg Server
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Server{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func (c Server) validate() error {
	switch c.Storage.Backend {
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendTables:
		if c.Storage.ConnString == "" {
			return errors.New("STORAGE_CONNECTION_STRING is required for the tables backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Storage.EventsQueue != "" && c.Storage.ConnString == "" {
		return errors.New("BOARD_EVENTS_QUEUE requires STORAGE_CONNECTION_STRING")
	}
	if c.Outbox.Workers <= 0 {
		return errors.New("OUTBOX_WORKERS must be greater than zero")
	}
	return nil
}

// LoadClient reads the board client settings from the environment.
func LoadClient() (Client, error) {
	var cfg Client
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Client{}, fmt.Errorf("read env: %w", err)
	}
	return cfg, nil
}

// RedisOptions parses the connection string. It returns nil when Redis is not configured.
func (r Redis) RedisOptions() (*redis.Options, error) {
	conn := strings.TrimSpace(r.ConnString)
	if conn == "" {
		return nil, nil
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	if parts[0] == "" || strings.Contains(parts[0], "=") {
		return nil, fmt.Errorf("invalid REDIS_CONNECTION_STRING %q", conn)
	}
	opts := &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts, nil
}
