// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	Upstream  UpstreamConfig  `koanf:"upstream"`
	Redis     RedisConfig     `koanf:"redis"`
	Cache     CacheConfig     `koanf:"cache"`
	Data      DataConfig      `koanf:"data"`
	Billing   BillingConfig   `koanf:"billing"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Admin     AdminConfig     `koanf:"admin"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// UpstreamConfig holds the shared provider account that every gateway
// request is proxied through.
type UpstreamConfig struct {
	BaseURL      string        `koanf:"base_url"`
	Username     string        `koanf:"username"`
	Password     string        `koanf:"password"`
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	MaxRedirects int           `koanf:"max_redirects"`
	UserAgent    string        `koanf:"user_agent"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

// CacheConfig carries one TTL per cache domain rather than per-call-site
// constants.
type CacheConfig struct {
	LiveTokenTTL time.Duration `koanf:"live_token_ttl"`
	PlaylistTTL  time.Duration `koanf:"playlist_ttl"`
	MetadataTTL  time.Duration `koanf:"metadata_ttl"`
	SegmentTTL   time.Duration `koanf:"segment_ttl"`
}

type DataConfig struct {
	UsersFile        string `koanf:"users_file"`
	TransactionsFile string `koanf:"transactions_file"`
	LegacyUsersFile  string `koanf:"legacy_users_file"`
}

type BillingConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Timezone string `koanf:"timezone"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type AdminConfig struct {
	KeyHash string `koanf:"key_hash"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		k := koanf.New(".")

		if err := loadDefaults(k); err != nil {
			loadErr = fmt.Errorf("load defaults: %w", err)
			return
		}

		if configPath != "" {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				loadErr = fmt.Errorf("load config file: %w", err)
				return
			}
		}

		if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
			loadErr = fmt.Errorf("load env vars: %w", err)
			return
		}

		cfg = &Config{}
		if err := k.Unmarshal("", cfg); err != nil {
			loadErr = fmt.Errorf("unmarshal config: %w", err)
			return
		}

		if err := validate(cfg); err != nil {
			loadErr = fmt.Errorf("validate config: %w", err)
			return
		}
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func Get() *Config {
	if cfg == nil {
		panic("config not loaded: call Load() first")
	}
	return cfg
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Streaming Gateway",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"upstream.fetch_timeout": "10s",
		"upstream.max_redirects": 5,
		"upstream.user_agent":    "IPTVSmartersPlayer/3.1 (Android 11)",

		"redis.url":            "redis://localhost:6379/0",
		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"cache.live_token_ttl": "5m",
		"cache.playlist_ttl":   "1h",
		"cache.metadata_ttl":   "24h",
		"cache.segment_ttl":    "720h",

		"data.users_file":        "data/users.json",
		"data.transactions_file": "data/transactions.json",
		"data.legacy_users_file": "data/iptv-users.json",

		"billing.enabled":  true,
		"billing.timezone": "Local",

		"rate_limit.requests": 100,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    20,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Content-Type",
			"Range",
			"X-Username",
			"X-Admin-Key",
			"X-Request-ID",
		},
		"cors.allow_credentials": false,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "streaming-gateway",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"UPSTREAM_BASE_URL":      "upstream.base_url",
	"UPSTREAM_USERNAME":      "upstream.username",
	"UPSTREAM_PASSWORD":      "upstream.password",
	"UPSTREAM_FETCH_TIMEOUT": "upstream.fetch_timeout",
	"UPSTREAM_USER_AGENT":    "upstream.user_agent",
	"REDIS_URL":              "redis.url",
	"ENVIRONMENT":            "app.environment",
	"HOST":                   "server.host",
	"PORT":                   "server.port",
	"LOG_LEVEL":              "log.level",
	"LOG_FORMAT":             "log.format",
	"LIVE_TOKEN_TTL":         "cache.live_token_ttl",
	"HLS_PLAYLIST_TTL":       "cache.playlist_ttl",
	"METADATA_CACHE_TTL":     "cache.metadata_ttl",
	"SEGMENT_CACHE_TTL":      "cache.segment_ttl",
	"USERS_FILE":             "data.users_file",
	"TRANSACTIONS_FILE":      "data.transactions_file",
	"LEGACY_USERS_FILE":      "data.legacy_users_file",
	"BILLING_ENABLED":        "billing.enabled",
	"BILLING_TIMEZONE":       "billing.timezone",
	"ADMIN_KEY_HASH":         "admin.key_hash",
	"RATE_LIMIT_REQUESTS":    "rate_limit.requests",
	"RATE_LIMIT_WINDOW":      "rate_limit.window",
	"RATE_LIMIT_BURST":       "rate_limit.burst",
	"OTEL_ENDPOINT":          "otel.endpoint",
	"OTEL_SERVICE_NAME":      "otel.service_name",
	"OTEL_ENABLED":           "otel.enabled",
	"OTEL_INSECURE":          "otel.insecure",
	"OTEL_SAMPLE_RATE":       "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_BASE_URL is required")
	}

	if c.Upstream.Username == "" {
		return fmt.Errorf("UPSTREAM_USERNAME is required")
	}

	if c.Upstream.Password == "" {
		return fmt.Errorf("UPSTREAM_PASSWORD is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	if c.Upstream.FetchTimeout <= 0 {
		return fmt.Errorf("upstream.fetch_timeout must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
