package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Cache      CacheConfig      `koanf:"cache"`
	Contentful ContentfulConfig `koanf:"contentful"`
	Sync       SyncConfig       `koanf:"sync"`
	Breaker    BreakerConfig    `koanf:"breaker"`
	Auth       AuthConfig       `koanf:"auth"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
	Shutdown   ShutdownConfig   `koanf:"shutdown"`
}

type ServerConfig struct {
	Addr    string `koanf:"addr"`
	Timeout struct {
		Read       time.Duration `koanf:"read"`
		Write      time.Duration `koanf:"write"`
		Idle       time.Duration `koanf:"idle"`
		ReadHeader time.Duration `koanf:"readheader"`
	} `koanf:"timeout"`
}

func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return errors.New("server.addr is required")
	}
	if c.Timeout.Read <= 0 || c.Timeout.Write <= 0 || c.Timeout.Idle <= 0 || c.Timeout.ReadHeader <= 0 {
		return errors.New("server timeouts must be positive")
	}
	return nil
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

type DatabaseConfig struct {
	Driver  string        `koanf:"driver"`
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverPostgres:
		if c.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
		if c.Timeout <= 0 {
			return errors.New("database.timeout must be positive")
		}
		return nil
	default:
		return fmt.Errorf("database.driver %q is not one of memory, postgres", c.Driver)
	}
}

type CacheConfig struct {
	Driver string        `koanf:"driver"`
	TTL    time.Duration `koanf:"ttl"`
	Redis  RedisConfig   `koanf:"redis"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

func (c *CacheConfig) Validate() error {
	if c.TTL <= 0 {
		return errors.New("cache.ttl must be positive")
	}
	switch c.Driver {
	case DriverMemory:
		return nil
	case DriverRedis:
		if c.Redis.Addr == "" {
			return errors.New("cache.redis.addr is required for the redis driver")
		}
		return nil
	default:
		return fmt.Errorf("cache.driver %q is not one of memory, redis", c.Driver)
	}
}

type ContentfulConfig struct {
	BaseURL     string        `koanf:"baseurl"`
	SpaceID     string        `koanf:"spaceid"`
	Environment string        `koanf:"environment"`
	AccessToken string        `koanf:"accesstoken"`
	ContentType string        `koanf:"contenttype"`
	Limit       int           `koanf:"limit"`
	Timeout     time.Duration `koanf:"timeout"`
	RateLimit   float64       `koanf:"ratelimit"`
}

// Configured reports whether a sync can reach a real space.
func (c *ContentfulConfig) Configured() bool {
	return c.SpaceID != "" && c.AccessToken != ""
}

func (c *ContentfulConfig) Validate() error {
	if u, err := url.Parse(c.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("contentful.baseurl %q is not an absolute URL", c.BaseURL)
	}
	if c.ContentType == "" {
		return errors.New("contentful.contenttype is required")
	}
	if c.Limit < 1 || c.Limit > 1000 {
		return errors.New("contentful.limit must be between 1 and 1000")
	}
	if c.Timeout <= 0 {
		return errors.New("contentful.timeout must be positive")
	}
	if c.RateLimit < 0 {
		return errors.New("contentful.ratelimit must not be negative")
	}
	return nil
}

type SyncConfig struct {
	// Interval between scheduled syncs. Zero disables scheduling.
	Interval   time.Duration `koanf:"interval"`
	RateLimit  int           `koanf:"ratelimit"`
	RateWindow time.Duration `koanf:"ratewindow"`
	// TrustedProxies are CIDRs whose X-Forwarded-For is believed by the
	// sync rate limiter.
	TrustedProxies []string `koanf:"trustedproxies"`
}

func (c *SyncConfig) Validate() error {
	if c.Interval < 0 {
		return errors.New("sync.interval must not be negative")
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateWindow <= 0) {
		return errors.New("sync.ratelimit needs a positive sync.ratewindow")
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

func (c *SyncConfig) ProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		p, err := netip.ParsePrefix(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("sync.trustedproxies: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

type BreakerConfig struct {
	ConsecutiveFailures uint32        `koanf:"consecutivefailures"`
	OpenTimeout         time.Duration `koanf:"opentimeout"`
}

func (c *BreakerConfig) Validate() error {
	if c.ConsecutiveFailures == 0 {
		return errors.New("breaker.consecutivefailures must be positive")
	}
	if c.OpenTimeout <= 0 {
		return errors.New("breaker.opentimeout must be positive")
	}
	return nil
}

type AuthConfig struct {
	Mode string `koanf:"mode"`
}

func (c *AuthConfig) Validate() error {
	switch c.Mode {
	case "prefix", "jwt":
		return nil
	default:
		return fmt.Errorf("auth.mode %q is not one of prefix, jwt", c.Mode)
	}
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Token   string `koanf:"token"`
}

func (c *MetricsConfig) Validate() error {
	if c.Enabled && c.Token == "" {
		return errors.New("metrics.token is required when metrics are enabled")
	}
	return nil
}

type LogConfig struct {
	Level string `koanf:"level"`
}

func (c *LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Level)
	}
}

type ShutdownConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

func (c *ShutdownConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("shutdown.timeout must be positive")
	}
	return nil
}

type validator interface {
	Validate() error
}

// Validate checks every section and reports all failures together.
func (c *Config) Validate() error {
	sections := []validator{
		&c.Server, &c.Database, &c.Cache, &c.Contentful, &c.Sync,
		&c.Breaker, &c.Auth, &c.Metrics, &c.Log, &c.Shutdown,
	}

	var errs []error
	for _, s := range sections {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Sync.Interval > 0 && !c.Contentful.Configured() {
		errs = append(errs, errors.New("scheduled sync needs contentful.spaceid and contentful.accesstoken"))
	}
	return errors.Join(errs...)
}

// String renders the effective configuration with secrets masked.
func (c *Config) String() string {
	var b strings.Builder

	b.WriteString("\n--- Server ---\n")
	fmt.Fprintf(&b, "  server.addr: %s\n", c.Server.Addr)
	fmt.Fprintf(&b, "  server.timeout.read: %s\n", c.Server.Timeout.Read)
	fmt.Fprintf(&b, "  server.timeout.write: %s\n", c.Server.Timeout.Write)
	fmt.Fprintf(&b, "  server.timeout.idle: %s\n", c.Server.Timeout.Idle)
	fmt.Fprintf(&b, "  server.timeout.readheader: %s\n", c.Server.Timeout.ReadHeader)

	b.WriteString("\n--- Storage ---\n")
	fmt.Fprintf(&b, "  database.driver: %s\n", c.Database.Driver)
	fmt.Fprintf(&b, "  database.url: %s\n", maskURL(c.Database.URL))
	fmt.Fprintf(&b, "  database.timeout: %s\n", c.Database.Timeout)
	fmt.Fprintf(&b, "  cache.driver: %s\n", c.Cache.Driver)
	fmt.Fprintf(&b, "  cache.ttl: %s\n", c.Cache.TTL)
	fmt.Fprintf(&b, "  cache.redis.addr: %s\n", c.Cache.Redis.Addr)
	fmt.Fprintf(&b, "  cache.redis.password: %s\n", maskSecret(c.Cache.Redis.Password))
	fmt.Fprintf(&b, "  cache.redis.db: %d\n", c.Cache.Redis.DB)

	b.WriteString("\n--- Content sync ---\n")
	fmt.Fprintf(&b, "  contentful.baseurl: %s\n", c.Contentful.BaseURL)
	fmt.Fprintf(&b, "  contentful.spaceid: %s\n", c.Contentful.SpaceID)
	fmt.Fprintf(&b, "  contentful.environment: %s\n", c.Contentful.Environment)
	fmt.Fprintf(&b, "  contentful.accesstoken: %s\n", maskSecret(c.Contentful.AccessToken))
	fmt.Fprintf(&b, "  contentful.contenttype: %s\n", c.Contentful.ContentType)
	fmt.Fprintf(&b, "  contentful.limit: %d\n", c.Contentful.Limit)
	fmt.Fprintf(&b, "  contentful.timeout: %s\n", c.Contentful.Timeout)
	fmt.Fprintf(&b, "  contentful.ratelimit: %g\n", c.Contentful.RateLimit)
	fmt.Fprintf(&b, "  sync.interval: %s\n", c.Sync.Interval)
	fmt.Fprintf(&b, "  sync.ratelimit: %d per %s\n", c.Sync.RateLimit, c.Sync.RateWindow)
	fmt.Fprintf(&b, "  sync.trustedproxies: %s\n", strings.Join(c.Sync.TrustedProxies, ","))
	fmt.Fprintf(&b, "  breaker.consecutivefailures: %d\n", c.Breaker.ConsecutiveFailures)
	fmt.Fprintf(&b, "  breaker.opentimeout: %s\n", c.Breaker.OpenTimeout)

	b.WriteString("\n--- Access & observability ---\n")
	fmt.Fprintf(&b, "  auth.mode: %s\n", c.Auth.Mode)
	fmt.Fprintf(&b, "  metrics.enabled: %t\n", c.Metrics.Enabled)
	fmt.Fprintf(&b, "  metrics.token: %s\n", maskSecret(c.Metrics.Token))
	fmt.Fprintf(&b, "  log.level: %s\n", c.Log.Level)
	fmt.Fprintf(&b, "  shutdown.timeout: %s\n", c.Shutdown.Timeout)

	return b.String()
}

func maskURL(raw string) string {
	if raw == "" {
		return "<not configured>"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "****"
	}
	if u.User != nil {
		u.User = url.User("****")
	}
	return u.String()
}

func maskSecret(s string) string {
	if s == "" {
		return "<not configured>"
	}
	return "****"
}
