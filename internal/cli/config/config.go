package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the rowmodel configuration
type Config struct {
	Entities string         `mapstructure:"entities"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
	// TxRetries is the number of attempts for transactions failing with a
	// deadlock or serialization error; 0 disables retrying
	TxRetries int `mapstructure:"tx_retries"`
}

// CacheConfig represents row cache configuration
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// RedisConfig represents the Redis connection used by the redis cache backend
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

var configNames = []string{"rowmodel.yaml", "rowmodel.yml"}

// Load loads the configuration. An explicit path must exist; with an empty
// path rowmodel.yaml is searched from the working directory upwards and
// defaults are used when there is none. ROWMODEL_* environment variables
// override file values (ROWMODEL_DATABASE_URL for database.url).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("entities", "entities.yaml")
	v.SetDefault("database.driver", "pgx")
	v.SetDefault("database.url", "")
	v.SetDefault("database.tx_retries", 0)
	v.SetDefault("cache.backend", "none")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.prefix", "rowmodel:")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("ROWMODEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		if found, err := FindConfigFile(); err == nil {
			path = found
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// relative entity paths are resolved against the config file
		if entities := v.GetString("entities"); entities != "" && !filepath.IsAbs(entities) &&
			v.InConfig("entities") && os.Getenv("ROWMODEL_ENTITIES") == "" {
			v.Set("entities", filepath.Join(filepath.Dir(path), entities))
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// DatabaseURL returns database.url, falling back to DATABASE_URL
func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return os.Getenv("DATABASE_URL")
}

// FindConfigFile looks for rowmodel.yaml in the working directory and its
// parents
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range configNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("no rowmodel.yaml found")
		}
		dir = parent
	}
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Database.Driver {
	case "pgx", "postgres", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be one of pgx, postgres, sqlite3, got: %s", cfg.Database.Driver)
	}

	switch cfg.Cache.Backend {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be one of none, memory, redis, got: %s", cfg.Cache.Backend)
	}

	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got: %s", cfg.Cache.TTL)
	}
	if cfg.Database.TxRetries < 0 {
		return fmt.Errorf("database.tx_retries must not be negative, got: %d", cfg.Database.TxRetries)
	}
	return nil
}
