// Package config loads portal configuration from the environment, an optional
// .env file and an optional config.yaml.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values for the portal server.
type Config struct {
	Addr      string `mapstructure:"APP_ADDR"`
	DataDir   string `mapstructure:"DATA_DIR"`
	StaticDir string `mapstructure:"STATIC_DIR"`
	Env       string `mapstructure:"ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`

	// Remote P-Connect API.
	APIURL            string `mapstructure:"PCONNECT_API_URL"`
	LegacyAPIURL      string `mapstructure:"NEXT_PUBLIC_API_URL"`
	APITimeoutSeconds int    `mapstructure:"API_TIMEOUT_SECONDS"`
	APIMaxAttempts    int    `mapstructure:"API_MAX_ATTEMPTS"`
	APIRetryBackoffMS int    `mapstructure:"API_RETRY_BACKOFF_MS"`
	APIRateLimit      int    `mapstructure:"API_RATE_LIMIT_PER_SEC"`
	APILogRequests    bool   `mapstructure:"API_LOG_REQUESTS"`

	// Client state backend: "sqlite" or "redis".
	StateBackend  string `mapstructure:"STATE_BACKEND"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisStateDB  int    `mapstructure:"REDIS_STATE_DB"`

	AvailabilityRefreshSeconds int    `mapstructure:"AVAILABILITY_REFRESH_SECONDS"`
	SessionIdleMinutes         int    `mapstructure:"SESSION_IDLE_MINUTES"`
	KioskRequestsPerMin        int    `mapstructure:"KIOSK_REQUESTS_PER_MIN"`
	CORSOrigins                string `mapstructure:"CORS_ORIGINS"`
}

// Load reads .env (if present), config.yaml (if present) and the environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	// AutomaticEnv only covers keys viper already knows about, so bind the
	// ones without defaults explicitly.
	for _, key := range []string{"NEXT_PUBLIC_API_URL", "REDIS_PASSWORD", "CORS_ORIGINS"} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	return cfg.normalize(), nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ADDR", ":8099")
	v.SetDefault("DATA_DIR", "/data")
	v.SetDefault("STATIC_DIR", "./static")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PCONNECT_API_URL", "")
	v.SetDefault("API_TIMEOUT_SECONDS", 30)
	v.SetDefault("API_MAX_ATTEMPTS", 3)
	v.SetDefault("API_RETRY_BACKOFF_MS", 1000)
	v.SetDefault("API_RATE_LIMIT_PER_SEC", 0)
	v.SetDefault("API_LOG_REQUESTS", false)
	v.SetDefault("STATE_BACKEND", "sqlite")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_STATE_DB", 0)
	v.SetDefault("AVAILABILITY_REFRESH_SECONDS", 30)
	v.SetDefault("SESSION_IDLE_MINUTES", 480)
	v.SetDefault("KIOSK_REQUESTS_PER_MIN", 60)
}

func (c Config) normalize() Config {
	if c.APIURL == "" {
		c.APIURL = c.LegacyAPIURL
	}
	if c.APIURL == "" {
		c.APIURL = "http://localhost:8000"
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.APITimeoutSeconds <= 0 {
		c.APITimeoutSeconds = 30
	}
	if c.APIMaxAttempts <= 0 {
		c.APIMaxAttempts = 3
	}
	if c.AvailabilityRefreshSeconds <= 0 {
		c.AvailabilityRefreshSeconds = 30
	}
	if c.SessionIdleMinutes <= 0 {
		c.SessionIdleMinutes = 480
	}
	c.StateBackend = strings.ToLower(c.StateBackend)
	return c
}

// IsProduction reports whether the portal runs in production mode.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// APITimeout returns the per-request timeout for the remote API.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.APITimeoutSeconds) * time.Second
}

// APIRetryBackoff returns the linear retry backoff unit.
func (c Config) APIRetryBackoff() time.Duration {
	return time.Duration(c.APIRetryBackoffMS) * time.Millisecond
}

// AvailabilityRefresh returns the availability polling interval.
func (c Config) AvailabilityRefresh() time.Duration {
	return time.Duration(c.AvailabilityRefreshSeconds) * time.Second
}

// SessionIdle returns how long an unused portal session survives.
func (c Config) SessionIdle() time.Duration {
	return time.Duration(c.SessionIdleMinutes) * time.Minute
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c Config) AllowedOrigins() []string {
	if c.CORSOrigins == "" {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
