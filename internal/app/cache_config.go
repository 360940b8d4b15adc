package app

import (
	"strings"

	"github.com/robjohncolson/statrelay/internal/cache"
	"github.com/robjohncolson/statrelay/internal/database"
)

// RedisClientConfig converts the application cache configuration into the cache package representation.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	return cache.RedisConfig{
		Address:  strings.TrimSpace(c.Redis.Address),
		Username: strings.TrimSpace(c.Redis.Username),
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TLS:      c.Redis.TLS,
		Timeout:  c.Redis.Timeout,
	}
}

// StoreConfig converts the application database settings into the database package representation.
func (c DatabaseConfig) StoreConfig() database.Config {
	cfg := database.Config{
		Driver: strings.TrimSpace(strings.ToLower(c.Driver)),
		Path:   c.Path,
		DSN:    c.DSN,
	}

	if cfg.Driver == "postgres" && cfg.DSN == "" {
		cfg.Host = c.Postgres.Host
		cfg.Port = c.Postgres.Port
		cfg.Name = c.Postgres.Database
		cfg.User = c.Postgres.Username
		cfg.Password = c.Postgres.Password
		if c.Postgres.SSLMode != "" {
			cfg.Options = map[string]string{"sslmode": c.Postgres.SSLMode}
		}
	}
	return cfg
}
