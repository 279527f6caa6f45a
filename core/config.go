package core

import (
	"net/url"
	"strings"
	"time"
)

const (
	BackendPandora = "pandora"
	BackendNinja   = "ninja"
)

type DatabaseConfig struct {
	Driver             string `koanf:"driver" mapstructure:"driver"`
	DSN                string `koanf:"dsn" mapstructure:"dsn"`
	Debug              bool   `koanf:"debug" mapstructure:"debug"`
	PingTimeoutSeconds int    `koanf:"ping_timeout_seconds" mapstructure:"ping_timeout_seconds"`
}

type PandoraConfig struct {
	BaseURL                 string `koanf:"base_url" mapstructure:"base_url"`
	PoolToken               string `koanf:"pool_token" mapstructure:"pool_token"`
	ShareTokenName          string `koanf:"share_token_name" mapstructure:"share_token_name"`
	RefreshPlatformViaLogin bool   `koanf:"refresh_platform_via_login" mapstructure:"refresh_platform_via_login"`
}

type NinjaConfig struct {
	BaseURL string `koanf:"base_url" mapstructure:"base_url"`
}

type HTTPConfig struct {
	TimeoutSeconds    int     `koanf:"timeout_seconds" mapstructure:"timeout_seconds"`
	ProxyURL          string  `koanf:"proxy_url" mapstructure:"proxy_url"`
	RequestsPerSecond float64 `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	UserAgent         string  `koanf:"user_agent" mapstructure:"user_agent"`
}

type RetryConfig struct {
	MaxAttempts int     `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS int     `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	Multiplier  float64 `koanf:"multiplier" mapstructure:"multiplier"`
}

type LifecycleConfig struct {
	NearExpiryDays      int `koanf:"near_expiry_days" mapstructure:"near_expiry_days"`
	ObtainBatch         int `koanf:"obtain_batch" mapstructure:"obtain_batch"`
	RefreshBatch        int `koanf:"refresh_batch" mapstructure:"refresh_batch"`
	SessionTokenTTLDays int `koanf:"session_token_ttl_days" mapstructure:"session_token_ttl_days"`
	RefreshTokenTTLDays int `koanf:"refresh_token_ttl_days" mapstructure:"refresh_token_ttl_days"`
	AccessTokenTTLDays  int `koanf:"access_token_ttl_days" mapstructure:"access_token_ttl_days"`
}

type PoolConfig struct {
	Size int    `koanf:"size" mapstructure:"size"`
	ID   string `koanf:"id" mapstructure:"id"`
}

type LogConfig struct {
	Level string `koanf:"level" mapstructure:"level"`
}

type MetricsConfig struct {
	Textfile string `koanf:"textfile" mapstructure:"textfile"`
}

type ScheduleConfig struct {
	Obtain   string `koanf:"obtain" mapstructure:"obtain"`
	Refresh  string `koanf:"refresh" mapstructure:"refresh"`
	Assemble string `koanf:"assemble" mapstructure:"assemble"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Backend     string          `koanf:"backend" mapstructure:"backend"`
	Database    DatabaseConfig  `koanf:"database" mapstructure:"database"`
	Pandora     PandoraConfig   `koanf:"pandora" mapstructure:"pandora"`
	Ninja       NinjaConfig     `koanf:"ninja" mapstructure:"ninja"`
	HTTP        HTTPConfig      `koanf:"http" mapstructure:"http"`
	Retry       RetryConfig     `koanf:"retry" mapstructure:"retry"`
	Lifecycle   LifecycleConfig `koanf:"lifecycle" mapstructure:"lifecycle"`
	Pool        PoolConfig      `koanf:"pool" mapstructure:"pool"`
	Log         LogConfig       `koanf:"log" mapstructure:"log"`
	Metrics     MetricsConfig   `koanf:"metrics" mapstructure:"metrics"`
	Schedule    ScheduleConfig  `koanf:"schedule" mapstructure:"schedule"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "tokenpool",
		Backend:     BackendPandora,
		Database: DatabaseConfig{
			Driver:             "sqlite3",
			DSN:                "file:tokenpool.db?_foreign_keys=on",
			PingTimeoutSeconds: 5,
		},
		Pandora: PandoraConfig{
			ShareTokenName:          "demo",
			RefreshPlatformViaLogin: true,
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 20,
		},
		Retry: RetryConfig{
			MaxAttempts: 6,
			BaseDelayMS: 1000,
			Multiplier:  2,
		},
		Lifecycle: LifecycleConfig{
			NearExpiryDays:      5,
			ObtainBatch:         10,
			RefreshBatch:        UnboundedBatch,
			SessionTokenTTLDays: 90,
			RefreshTokenTTLDays: 10,
			AccessTokenTTLDays:  10,
		},
		Pool: PoolConfig{
			Size: MaxPoolShareTokens,
			ID:   "default",
		},
		Log: LogConfig{
			Level: "info",
		},
		Schedule: ScheduleConfig{
			Obtain:   "@every 1h",
			Refresh:  "@daily",
			Assemble: "@every 6h",
		},
	}
}

// Validate rejects settings that would make every run fail. Failures are
// configuration errors so callers can stop before touching any account.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return NewConfigurationError("core: service_name is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Backend)) {
	case BackendPandora, BackendNinja:
	default:
		return NewConfigurationError("core: unknown backend %q, expected pandora or ninja", c.Backend)
	}
	switch strings.TrimSpace(c.Database.Driver) {
	case "sqlite3", "sqlite", "postgres":
	default:
		return NewConfigurationError("core: unsupported database driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return NewConfigurationError("core: database.dsn is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return NewConfigurationError("core: http.timeout_seconds must be positive")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return NewConfigurationError("core: http.requests_per_second must not be negative")
	}
	if proxy := strings.TrimSpace(c.HTTP.ProxyURL); proxy != "" {
		if _, err := url.Parse(proxy); err != nil {
			return NewConfigurationError("core: invalid http.proxy_url: %v", err)
		}
	}
	if c.Retry.MaxAttempts < 1 {
		return NewConfigurationError("core: retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelayMS < 0 {
		return NewConfigurationError("core: retry.base_delay_ms must not be negative")
	}
	if c.Retry.Multiplier < 1 {
		return NewConfigurationError("core: retry.multiplier must be at least 1")
	}
	if !validBatch(c.Lifecycle.ObtainBatch) || !validBatch(c.Lifecycle.RefreshBatch) {
		return NewConfigurationError("core: lifecycle batches must be positive or %d", UnboundedBatch)
	}
	if c.Lifecycle.NearExpiryDays < 0 {
		return NewConfigurationError("core: lifecycle.near_expiry_days must not be negative")
	}
	if c.Lifecycle.SessionTokenTTLDays <= 0 || c.Lifecycle.RefreshTokenTTLDays <= 0 || c.Lifecycle.AccessTokenTTLDays <= 0 {
		return NewConfigurationError("core: lifecycle token ttl days must be positive")
	}
	if c.Pool.Size <= 0 {
		return NewConfigurationError("core: pool.size must be positive")
	}
	return nil
}

// ValidateBackend checks the settings needed by the selected backend adapter.
func (c Config) ValidateBackend() error {
	backend := strings.ToLower(strings.TrimSpace(c.Backend))
	var baseURL string
	switch backend {
	case BackendPandora:
		baseURL = c.Pandora.BaseURL
	case BackendNinja:
		baseURL = c.Ninja.BaseURL
	default:
		return NewConfigurationError("core: unknown backend %q, expected pandora or ninja", c.Backend)
	}
	if strings.TrimSpace(baseURL) == "" {
		return NewConfigurationError("core: %s.base_url is required", backend)
	}
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return NewConfigurationError("core: %s.base_url %q is not an absolute url", backend, baseURL)
	}
	return nil
}

func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

func (c Config) PingTimeout() time.Duration {
	return time.Duration(c.Database.PingTimeoutSeconds) * time.Second
}

func (c Config) NearExpiryWindow() time.Duration {
	return days(c.Lifecycle.NearExpiryDays)
}

func (c Config) SessionTokenTTL() time.Duration {
	return days(c.Lifecycle.SessionTokenTTLDays)
}

func (c Config) RefreshTokenTTL() time.Duration {
	return days(c.Lifecycle.RefreshTokenTTLDays)
}

func (c Config) AccessTokenTTL() time.Duration {
	return days(c.Lifecycle.AccessTokenTTLDays)
}

// RetryPolicy builds the adapter call policy from the retry section.
func (c Config) RetryPolicy() RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = c.Retry.MaxAttempts
	policy.BaseDelay = time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
	policy.Multiplier = c.Retry.Multiplier
	return policy
}

func validBatch(limit int) bool {
	return limit == UnboundedBatch || limit > 0
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}
