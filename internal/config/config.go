package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, with dots turned
// into underscores: SITEMETA_REDIS_ADDR overrides redis.addr.
const EnvPrefix = "SITEMETA"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	History   HistoryConfig   `mapstructure:"history"`
	Resolver  ResolverConfig  `mapstructure:"resolver"`
	Colors    ColorsConfig    `mapstructure:"colors"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Bookmarks BookmarksConfig `mapstructure:"bookmarks"`
	Access    AccessConfig    `mapstructure:"access"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`           // ex: ":8080"
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // ex: 5s
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Pretty bool   `mapstructure:"pretty"` // true => zap dev (color), false => zap prod (JSON)
}

// RedisConfig backs the cache and color stores. When Enabled is false the
// in-memory stores are used instead.
type RedisConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Addr             string        `mapstructure:"addr"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	PasswordRequired bool          `mapstructure:"password_required"`
	DB               int           `mapstructure:"db"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	PoolSize         int           `mapstructure:"pool_size"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"` // total time spent retrying
	RetryInterval    time.Duration `mapstructure:"retry_interval"`  // first wait, doubles each attempt
	MaxWait          time.Duration `mapstructure:"max_wait"`        // cap between attempts
	WarnThreshold    int           `mapstructure:"warn_threshold"`  // warn after this many attempts
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"` // 0 = no expiry
}

// HistoryConfig selects the history backend. An empty Path keeps history in
// memory for the lifetime of the process.
type HistoryConfig struct {
	Path          string        `mapstructure:"path"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	Retention     time.Duration `mapstructure:"retention"` // 0 disables pruning
}

type ResolverConfig struct {
	NetworkTimeout time.Duration `mapstructure:"network_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IOWorkers      int           `mapstructure:"io_workers"`
	CPUWorkers     int           `mapstructure:"cpu_workers"`
}

type ColorsConfig struct {
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

type FetcherConfig struct {
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxIconBytes int           `mapstructure:"max_icon_bytes"`
}

// BookmarksConfig points at an optional Homepage-style bookmarks.yaml.
type BookmarksConfig struct {
	File           string        `mapstructure:"file"` // empty = bookmarks disabled
	ReloadInterval time.Duration `mapstructure:"reload_interval"`
}

type AccessConfig struct {
	AllowedCIDRs []string `mapstructure:"allowed_cidrs"` // restricts admin routes
	TrustProxy   bool     `mapstructure:"trust_proxy"`   // true => trust X-Forwarded-For
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"` // 0 disables limiting
	Burst int     `mapstructure:"burst"`
}

// Load builds a Config from defaults, the optional file at path and the
// environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Access.AllowedCIDRs = splitAndTrim(cfg.Access.AllowedCIDRs)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// Redis
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.username", "default")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.password_required", false)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.ping_timeout", 5*time.Second)
	v.SetDefault("redis.connect_timeout", 30*time.Second)
	v.SetDefault("redis.retry_interval", 2*time.Second)
	v.SetDefault("redis.max_wait", 10*time.Second)
	v.SetDefault("redis.warn_threshold", 3)

	// Stores
	v.SetDefault("cache.ttl", 7*24*time.Hour)
	v.SetDefault("history.path", "")
	v.SetDefault("history.prune_interval", 24*time.Hour)
	v.SetDefault("history.retention", 0)

	// Resolution
	v.SetDefault("resolver.network_timeout", 10*time.Second)
	v.SetDefault("resolver.write_timeout", 5*time.Second)
	v.SetDefault("resolver.io_workers", 16)
	v.SetDefault("resolver.cpu_workers", 2)
	v.SetDefault("colors.lookup_timeout", 250*time.Millisecond)

	// Fetcher
	v.SetDefault("fetcher.user_agent", "sitemeta/1.0 (+https://github.com/MrSnakeDoc/sitemeta)")
	v.SetDefault("fetcher.timeout", 10*time.Second)
	v.SetDefault("fetcher.max_icon_bytes", 512*1024)

	// Bookmarks
	v.SetDefault("bookmarks.file", "")
	v.SetDefault("bookmarks.reload_interval", 24*time.Hour)

	// Access restrictions
	v.SetDefault("access.allowed_cidrs", []string{})
	v.SetDefault("access.trust_proxy", false)
	v.SetDefault("ratelimit.rps", 10.0)
	v.SetDefault("ratelimit.burst", 20)
}

// Validate enforces required values and reasonable limits.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen must be set"))
	}
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr must be set when redis is enabled"))
		}
		if c.Redis.PasswordRequired && c.Redis.Password == "" {
			errs = append(errs, errors.New("redis.password is required when redis.password_required=true"))
		}
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache.ttl must be >= 0"))
	}
	if c.Resolver.NetworkTimeout <= 0 {
		errs = append(errs, errors.New("resolver.network_timeout must be > 0"))
	}
	if c.Resolver.WriteTimeout <= 0 {
		errs = append(errs, errors.New("resolver.write_timeout must be > 0"))
	}
	if c.Resolver.IOWorkers <= 0 {
		errs = append(errs, errors.New("resolver.io_workers must be > 0"))
	}
	if c.Resolver.CPUWorkers <= 0 {
		errs = append(errs, errors.New("resolver.cpu_workers must be > 0"))
	}
	if c.Colors.LookupTimeout <= 0 {
		errs = append(errs, errors.New("colors.lookup_timeout must be > 0"))
	}
	if c.Fetcher.Timeout <= 0 {
		errs = append(errs, errors.New("fetcher.timeout must be > 0"))
	}
	if c.Fetcher.MaxIconBytes <= 0 {
		errs = append(errs, errors.New("fetcher.max_icon_bytes must be > 0"))
	}
	if c.History.Retention > 0 && c.History.PruneInterval <= 0 {
		errs = append(errs, errors.New("history.prune_interval must be > 0 when retention is set"))
	}
	if c.Bookmarks.File != "" && c.Bookmarks.ReloadInterval <= 0 {
		errs = append(errs, errors.New("bookmarks.reload_interval must be > 0 when a bookmarks file is set"))
	}
	if c.RateLimit.RPS < 0 {
		errs = append(errs, errors.New("ratelimit.rps must be >= 0"))
	}
	if c.RateLimit.RPS > 0 && c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("ratelimit.burst must be > 0 when rate limiting is enabled"))
	}

	return errors.Join(errs...)
}

// Redacted returns a copy safe to print in debug logs.
func (c Config) Redacted() Config {
	if c.Redis.Password != "" {
		c.Redis.Password = "***REDACTED***"
	}
	if c.Redis.Username != "" {
		c.Redis.Username = "***REDACTED***"
	}
	return c
}

// splitAndTrim flattens comma-separated entries, which is what a single
// environment variable produces, and strips quotes and blanks.
func splitAndTrim(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	parts := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			trimmed = strings.Trim(trimmed, `"'`)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
	}
	return parts
}
