package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all the environment-based configurations.
type Config struct {
	AuthPort     string `envconfig:"RADIUS_AUTH_PORT" default:"1812"`
	AcctPort     string `envconfig:"RADIUS_ACCT_PORT" default:"1813"`
	RadiusSecret string `envconfig:"RADIUS_SECRET" default:"testing123"`
	MetricsAddr  string `envconfig:"METRICS_ADDR" default:":9090"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPass string `envconfig:"REDIS_PASSWORD"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	LogFilePath string `envconfig:"LOG_FILE_PATH"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Workers    int           `envconfig:"WORKERS" default:"8"`
	QueueSize  int           `envconfig:"QUEUE_SIZE" default:"1024"`
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"5s"`

	CacheSize int           `envconfig:"CACHE_SIZE" default:"10000"`
	CacheTTL  time.Duration `envconfig:"CACHE_TTL" default:"2m"`

	MaxSessionTimeout int64         `envconfig:"MAX_SESSION_TIMEOUT" default:"86400"`
	InterimInterval   uint32        `envconfig:"ACCT_INTERIM_INTERVAL" default:"300"`
	AutoUnlock        bool          `envconfig:"AUTO_UNLOCK" default:"false"`
	BypassPassword    bool          `envconfig:"BYPASS_PASSWORD" default:"false"`
	DisconnectTimeout time.Duration `envconfig:"DISCONNECT_TIMEOUT" default:"3s"`
	StopMarkerTTL     time.Duration `envconfig:"STOP_MARKER_TTL" default:"24h"`
}

// Load reads the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// AuthAddr is the UDP listen address of the authentication service.
func (c Config) AuthAddr() string {
	return ":" + c.AuthPort
}

// AcctAddr is the UDP listen address of the accounting service.
func (c Config) AcctAddr() string {
	return ":" + c.AcctPort
}
