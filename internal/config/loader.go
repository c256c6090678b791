package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultFile      = "config.yaml"
	DefaultEnvFile   = ".env"
	DefaultEnvPrefix = "CATALOG_"
)

// Sources names where Load reads from. Missing files are skipped.
type Sources struct {
	File      string
	EnvFile   string
	EnvPrefix string
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":               ":8080",
		"server.timeout.read":       "5s",
		"server.timeout.write":      "30s",
		"server.timeout.idle":       "60s",
		"server.timeout.readheader": "2s",

		"database.driver":  DriverMemory,
		"database.timeout": "5s",

		"cache.driver":     DriverMemory,
		"cache.ttl":        time.Hour.String(),
		"cache.redis.addr": "localhost:6379",
		"cache.redis.db":   0,

		"contentful.baseurl":     "https://cdn.contentful.com",
		"contentful.environment": "master",
		"contentful.contenttype": "product",
		"contentful.limit":       100,
		"contentful.timeout":     "10s",
		"contentful.ratelimit":   2,

		"sync.interval":   "0s",
		"sync.ratelimit":  5,
		"sync.ratewindow": "1m",

		"breaker.consecutivefailures": 5,
		"breaker.opentimeout":         "30s",

		"auth.mode": "prefix",

		"metrics.enabled": false,

		"log.level": "info",

		"shutdown.timeout": "10s",
	}
}

// Load reads config.yaml, then .env, then CATALOG_* environment variables,
// each layer overriding the previous one, on top of built-in defaults.
func Load() (Config, error) {
	return LoadFrom(Sources{File: DefaultFile, EnvFile: DefaultEnvFile, EnvPrefix: DefaultEnvPrefix})
}

func LoadFrom(src Sources) (Config, error) {
	var cfg Config
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return cfg, fmt.Errorf("load defaults: %w", err)
	}

	if src.File != "" {
		if err := k.Load(file.Provider(src.File), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", src.File, err)
		}
	}

	// CATALOG_CACHE_REDIS_ADDR -> cache.redis.addr
	toKey := func(key string) string {
		key = strings.ToLower(key)
		key = strings.TrimPrefix(key, strings.ToLower(src.EnvPrefix))
		return strings.ReplaceAll(key, "_", ".")
	}

	if src.EnvFile != "" {
		vars, err := godotenv.Read(src.EnvFile)
		switch {
		case err == nil:
			m := make(map[string]any, len(vars))
			for key, value := range vars {
				if strings.HasPrefix(key, src.EnvPrefix) {
					m[toKey(key)] = value
				}
			}
			if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
				return cfg, fmt.Errorf("load %s: %w", src.EnvFile, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return cfg, fmt.Errorf("read %s: %w", src.EnvFile, err)
		}
	}

	if err := k.Load(env.Provider(src.EnvPrefix, ".", toKey), nil); err != nil {
		return cfg, fmt.Errorf("load environment: %w", err)
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
