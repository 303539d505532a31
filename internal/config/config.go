// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"auction-sync/internal/connectivity"
	"auction-sync/internal/livechannel"
	"auction-sync/internal/persistence"
	"auction-sync/internal/retry"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	API           APIConfig
	Retry         RetryConfig
	Probe         ProbeConfig
	Live          LiveConfig
	Notifications NotificationsConfig
	Persistence   PersistenceConfig
	Log           LogConfig
	Metrics       MetricsConfig
	DevServer     DevServerConfig
}

// APIConfig locates the auction service.
type APIConfig struct {
	BaseURL        string        `envconfig:"API_BASE_URL" default:"http://localhost:8080"`
	WSURL          string        `envconfig:"API_WS_URL" default:"ws://localhost:8080/ws"`
	RequestTimeout time.Duration `envconfig:"API_REQUEST_TIMEOUT" default:"30s"`
}

// RetryConfig tunes the resilient request executor.
type RetryConfig struct {
	MaxRetries        int           `envconfig:"RETRY_MAX_RETRIES" default:"3"`
	BaseDelay         time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
	MaxDelay          time.Duration `envconfig:"RETRY_MAX_DELAY" default:"10s"`
	BackoffMultiplier float64       `envconfig:"RETRY_BACKOFF_MULTIPLIER" default:"2"`
	Timeout           time.Duration `envconfig:"RETRY_TIMEOUT" default:"10s"`
	Jitter            float64       `envconfig:"RETRY_JITTER" default:"0"`
}

// ProbeConfig tunes the connectivity probe.
type ProbeConfig struct {
	NetworkURL string        `envconfig:"PROBE_NETWORK_URL" default:"https://www.google.com/generate_204"`
	Timeout    time.Duration `envconfig:"PROBE_TIMEOUT" default:"5s"`
}

// LiveConfig tunes the live channel.
type LiveConfig struct {
	HandshakeTimeout  time.Duration `envconfig:"LIVE_HANDSHAKE_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"LIVE_WRITE_TIMEOUT" default:"10s"`
	ReadTimeout       time.Duration `envconfig:"LIVE_READ_TIMEOUT" default:"60s"`
	PingInterval      time.Duration `envconfig:"LIVE_PING_INTERVAL" default:"25s"`
	ReconnectDelay    time.Duration `envconfig:"LIVE_RECONNECT_DELAY" default:"1s"`
	MaxReconnectDelay time.Duration `envconfig:"LIVE_MAX_RECONNECT_DELAY" default:"30s"`
	EventBuffer       int           `envconfig:"LIVE_EVENT_BUFFER" default:"256"`
}

// NotificationsConfig tunes the feed.
type NotificationsConfig struct {
	Capacity        int           `envconfig:"NOTIFICATIONS_CAPACITY" default:"100"`
	DedupWindow     time.Duration `envconfig:"NOTIFICATIONS_DEDUP_WINDOW" default:"3s"`
	EndingThreshold time.Duration `envconfig:"NOTIFICATIONS_ENDING_THRESHOLD" default:"5m"`
}

// PersistenceConfig selects where per-user state survives restarts.
type PersistenceConfig struct {
	Type          string `envconfig:"PERSISTENCE_TYPE" default:"sqlite"` // memory, sqlite or redis
	Path          string `envconfig:"PERSISTENCE_PATH" default:"./data/auction-sync.db"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"PERSISTENCE_KEY_PREFIX" default:"auction-sync:state"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// MetricsConfig holds the metrics listener. An empty address disables it.
type MetricsConfig struct {
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"auction_sync"`
	Address   string `envconfig:"METRICS_ADDRESS" default:":9102"`
}

// DevServerConfig holds the reference auction service settings.
type DevServerConfig struct {
	Host         string        `envconfig:"DEVSERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"DEVSERVER_PORT" default:"8080"`
	TickInterval time.Duration `envconfig:"DEVSERVER_TICK_INTERVAL" default:"1s"`
	SeedAuctions int           `envconfig:"DEVSERVER_SEED_AUCTIONS" default:"3"`
}

// Address returns the dev server address in host:port format.
func (d *DevServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (p *PersistenceConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", p.RedisHost, p.RedisPort)
}

// Options converts the settings into persistence.Open input.
func (p *PersistenceConfig) Options() persistence.Options {
	return persistence.Options{
		Type:      strings.ToLower(p.Type),
		Path:      p.Path,
		RedisAddr: p.RedisAddress(),
		RedisPass: p.RedisPassword,
		RedisDB:   p.RedisDB,
		KeyPrefix: p.KeyPrefix,
	}
}

// Options converts the settings into retry options.
func (r *RetryConfig) Options() retry.Options {
	return retry.Options{
		MaxRetries:        r.MaxRetries,
		BaseDelay:         r.BaseDelay,
		MaxDelay:          r.MaxDelay,
		BackoffMultiplier: r.BackoffMultiplier,
		Timeout:           r.Timeout,
		Jitter:            r.Jitter,
	}
}

// ClientConfig converts the settings into a live channel configuration.
func (l *LiveConfig) ClientConfig() livechannel.Config {
	return livechannel.Config{
		HandshakeTimeout:  l.HandshakeTimeout,
		WriteTimeout:      l.WriteTimeout,
		ReadTimeout:       l.ReadTimeout,
		PingInterval:      l.PingInterval,
		ReconnectDelay:    l.ReconnectDelay,
		MaxReconnectDelay: l.MaxReconnectDelay,
		EventBuffer:       l.EventBuffer,
	}
}

// ProbeOptions returns the probe options for these settings.
func (p *ProbeConfig) ProbeOptions() []connectivity.Option {
	return []connectivity.Option{connectivity.WithTimeout(p.Timeout)}
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.Retry.MaxRetries < 1 {
		return fmt.Errorf("RETRY_MAX_RETRIES must be at least 1, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		return fmt.Errorf("RETRY_JITTER must be within [0,1], got %v", c.Retry.Jitter)
	}
	if c.Notifications.Capacity < 1 {
		return fmt.Errorf("NOTIFICATIONS_CAPACITY must be positive, got %d", c.Notifications.Capacity)
	}
	switch strings.ToLower(c.Persistence.Type) {
	case persistence.TypeMemory, persistence.TypeSQLite, persistence.TypeRedis:
	default:
		return fmt.Errorf("unknown PERSISTENCE_TYPE %q", c.Persistence.Type)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
