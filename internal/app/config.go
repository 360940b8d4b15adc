package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/robjohncolson/statrelay/internal/middleware"
)

// Config represents the runtime configuration for the relay.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	LogLevel        string        `mapstructure:"log_level"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
}

// DBAuthConfig represents host based database parameters.
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// CacheConfig describes the response cache and counter-store backends.
type CacheConfig struct {
	TTL             time.Duration    `mapstructure:"ttl"`
	UpstreamTimeout time.Duration    `mapstructure:"upstream_timeout"`
	Redis           RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig holds Redis connection options for shared rate counters.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// AuthConfig captures claims-verifier settings.
type AuthConfig struct {
	JWT JWTSettings `mapstructure:"jwt"`
}

// JWTSettings configures bearer tokens.
type JWTSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	Audience string        `mapstructure:"audience"`
	TTL      time.Duration `mapstructure:"token_ttl"`
}

// RateLimitConfig carries per-class quotas.
type RateLimitConfig struct {
	TeacherMultiplier int                    `mapstructure:"teacher_multiplier"`
	Classes           map[string]ClassConfig `mapstructure:"classes"`
}

// ClassConfig is the quota for one operation class.
type ClassConfig struct {
	Max    int           `mapstructure:"max"`
	Window time.Duration `mapstructure:"window"`
}

// MonitoringConfig tunes the health monitor.
type MonitoringConfig struct {
	Interval           time.Duration `mapstructure:"interval"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout"`
	P95Threshold       time.Duration `mapstructure:"p95_threshold"`
	ErrorRateThreshold float64       `mapstructure:"error_rate_threshold"`
}

// RealtimeConfig toggles websocket fan-out.
type RealtimeConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig initialises application configuration using Viper with sensible defaults.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("STATRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.path", "./data/statrelay.sqlite")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "require")

	v.SetDefault("cache.ttl", "30s")
	v.SetDefault("cache.upstream_timeout", "2s")
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.address", "127.0.0.1:6379")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.tls", false)
	v.SetDefault("cache.redis.timeout", "5s")

	v.SetDefault("auth.jwt.issuer", "statrelay")
	v.SetDefault("auth.jwt.audience", "quiz-app")
	v.SetDefault("auth.jwt.token_ttl", "24h")

	v.SetDefault("rate_limit.teacher_multiplier", 2)
	v.SetDefault("rate_limit.classes.profile_create.max", 5)
	v.SetDefault("rate_limit.classes.profile_create.window", "1h")
	v.SetDefault("rate_limit.classes.auth.max", 20)
	v.SetDefault("rate_limit.classes.auth.window", "1m")
	v.SetDefault("rate_limit.classes.write.max", 30)
	v.SetDefault("rate_limit.classes.write.window", "1m")
	v.SetDefault("rate_limit.classes.heartbeat.max", 120)
	v.SetDefault("rate_limit.classes.heartbeat.window", "1m")
	v.SetDefault("rate_limit.classes.read.max", 120)
	v.SetDefault("rate_limit.classes.read.window", "1m")

	v.SetDefault("monitoring.interval", "15s")
	v.SetDefault("monitoring.probe_timeout", "500ms")
	v.SetDefault("monitoring.p95_threshold", "1s")
	v.SetDefault("monitoring.error_rate_threshold", 0.25)

	v.SetDefault("realtime.enabled", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Limits converts the configured quotas into the middleware representation.
// Unknown class names are rejected so a typo cannot silently leave an
// operation unlimited.
func (c RateLimitConfig) Limits() (middleware.Limits, error) {
	limits := middleware.Limits{
		Classes:           make(map[middleware.OpClass]middleware.LimitConfig, len(c.Classes)),
		TeacherMultiplier: c.TeacherMultiplier,
	}

	known := map[string]middleware.OpClass{
		string(middleware.OpProfileCreate): middleware.OpProfileCreate,
		string(middleware.OpAuth):          middleware.OpAuth,
		string(middleware.OpWrite):         middleware.OpWrite,
		string(middleware.OpHeartbeat):     middleware.OpHeartbeat,
		string(middleware.OpRead):          middleware.OpRead,
	}

	for name, cfg := range c.Classes {
		class, ok := known[name]
		if !ok {
			return middleware.Limits{}, fmt.Errorf("config: unknown rate limit class %q", name)
		}
		limits.Classes[class] = middleware.LimitConfig{Max: cfg.Max, Window: cfg.Window}
	}
	return limits, nil
}
