package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Push     PushConfig     `yaml:"push"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Sync     SyncConfig     `yaml:"sync"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// DispatchConfig holds the configuration for the push dispatch worker pool.
type DispatchConfig struct {
	WorkerPoolSize      int           `yaml:"worker_pool_size"`
	MaxSendAttempts     int           `yaml:"max_send_attempts"`
	RetryBackoffSeconds int           `yaml:"retry_backoff_seconds"`
	RetryBackoff        time.Duration `yaml:"-"` // Derived from RetryBackoffSeconds
}

// SyncConfig holds the client-side polling intervals.
type SyncConfig struct {
	ListIntervalSeconds  int           `yaml:"list_interval_seconds"`
	StatsIntervalSeconds int           `yaml:"stats_interval_seconds"`
	ListInterval         time.Duration `yaml:"-"`
	StatsInterval        time.Duration `yaml:"-"`
}

// AuthConfig holds the JWT signing secret for API authentication.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.Dispatch.WorkerPoolSize <= 0 {
		log.Printf("dispatch.worker_pool_size is not set or invalid; defaulting to 4")
		cfg.Dispatch.WorkerPoolSize = 4
	}
	if cfg.Dispatch.MaxSendAttempts <= 0 {
		cfg.Dispatch.MaxSendAttempts = 3
	}
	if cfg.Dispatch.RetryBackoffSeconds <= 0 {
		cfg.Dispatch.RetryBackoffSeconds = 2
	}
	cfg.Dispatch.RetryBackoff = time.Duration(cfg.Dispatch.RetryBackoffSeconds) * time.Second

	if cfg.Sync.ListIntervalSeconds <= 0 {
		cfg.Sync.ListIntervalSeconds = 30
	}
	if cfg.Sync.StatsIntervalSeconds <= 0 {
		cfg.Sync.StatsIntervalSeconds = 60
	}
	cfg.Sync.ListInterval = time.Duration(cfg.Sync.ListIntervalSeconds) * time.Second
	cfg.Sync.StatsInterval = time.Duration(cfg.Sync.StatsIntervalSeconds) * time.Second

	return &cfg, nil
}
