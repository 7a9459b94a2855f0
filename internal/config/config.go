// Package config provides configuration loading and validation from environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sipico/preview-gate/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	LogLevel          string // debug, info, warn, error
	ListenAddr        string // Gate listen address (e.g., ":8080")
	MetricsListenAddr string // Metrics listener address (e.g., "localhost:9090")

	UpstreamURL  string // Required: origin serving the site content
	SiteURL      string // Public base URL used in shareable links
	SiteTimezone string // IANA zone for expiry input and display

	StoreBackend  string // sqlite or redis
	DatabasePath  string // SQLite database path
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string

	AdminPassword       string        // Required: admin login secret
	AdminSessionTTL     time.Duration // Admin session lifetime
	TrustForwardedProto bool          // Honour X-Forwarded-Proto for cookie Secure

	// Static assets pass the gate unchecked so previewed pages render fully.
	AssetPrefixes   []string // Path prefixes served without a token check
	AssetExtensions []string // File extensions served without a token check

	location *time.Location
}

// Default asset rules cover WordPress theme and core files plus common
// stylesheet, script, image and font types.
const (
	defaultAssetPrefixes   = "/wp-content,/wp-includes"
	defaultAssetExtensions = "css,js,mjs,map,png,jpg,jpeg,gif,svg,ico,webp,avif,woff,woff2,ttf,otf,eot"
)

func envOr(name, def string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return def
}

// Load parses configuration from environment variables.
// Optional settings get defaults; malformed numeric, boolean and duration
// values are reported as errors. Required settings are checked by Validate.
func Load() (*Config, error) {
	var perr *multierror.Error
	bad := func(name, value string, err error) {
		perr = multierror.Append(perr, fmt.Errorf("%s=%q: %w", name, value, err))
	}

	cfg := &Config{
		LogLevel:          strings.ToLower(envOr("LOG_LEVEL", "info")),
		ListenAddr:        envOr("LISTEN_ADDR", ":8080"),
		MetricsListenAddr: envOr("METRICS_LISTEN_ADDR", "localhost:9090"),
		UpstreamURL:       envOr("UPSTREAM_URL", ""),
		SiteURL:           strings.TrimRight(envOr("SITE_URL", "http://localhost:8080"), "/"),
		SiteTimezone:      envOr("SITE_TIMEZONE", "UTC"),
		StoreBackend:      strings.ToLower(envOr("STORE_BACKEND", storage.BackendSQLite)),
		DatabasePath:      envOr("DATABASE_PATH", "/data/preview.db"),
		RedisAddr:         envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		RedisKey:          envOr("REDIS_KEY", storage.DefaultRedisKey),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		AdminSessionTTL:   24 * time.Hour,
		AssetPrefixes:     splitList(envOr("ASSET_PREFIXES", defaultAssetPrefixes)),
		AssetExtensions:   splitList(envOr("ASSET_EXTENSIONS", defaultAssetExtensions)),
	}

	if v := envOr("REDIS_DB", ""); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			bad("REDIS_DB", v, err)
		}
		cfg.RedisDB = db
	}

	if v := envOr("ADMIN_SESSION_TTL", ""); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			bad("ADMIN_SESSION_TTL", v, err)
		} else {
			cfg.AdminSessionTTL = ttl
		}
	}

	if v := envOr("TRUST_FORWARDED_PROTO", ""); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			bad("TRUST_FORWARDED_PROTO", v, err)
		}
		cfg.TrustForwardedProto = trust
	}

	if err := perr.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks all configuration constraints and reports every violation.
// On success the site timezone is resolved and available from Location.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.LogLevel))
	}

	if c.UpstreamURL == "" {
		result = multierror.Append(result, fmt.Errorf("UPSTREAM_URL environment variable is required"))
	} else if err := checkHTTPURL(c.UpstreamURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("UPSTREAM_URL: %w", err))
	}

	if err := checkHTTPURL(c.SiteURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("SITE_URL: %w", err))
	}

	loc, err := time.LoadLocation(c.SiteTimezone)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("SITE_TIMEZONE: %w", err))
	}

	switch c.StoreBackend {
	case storage.BackendSQLite:
		if c.DatabasePath == "" {
			result = multierror.Append(result, fmt.Errorf("DATABASE_PATH is required for the sqlite backend"))
		}
	case storage.BackendRedis:
		if c.RedisAddr == "" {
			result = multierror.Append(result, fmt.Errorf("REDIS_ADDR is required for the redis backend"))
		}
		if c.RedisDB < 0 {
			result = multierror.Append(result, fmt.Errorf("REDIS_DB must not be negative"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("STORE_BACKEND must be %q or %q; got %q", storage.BackendSQLite, storage.BackendRedis, c.StoreBackend))
	}

	if c.AdminPassword == "" {
		result = multierror.Append(result, fmt.Errorf("ADMIN_PASSWORD environment variable is required"))
	} else if len(c.AdminPassword) > 72 {
		// bcrypt only considers the first 72 bytes.
		result = multierror.Append(result, fmt.Errorf("ADMIN_PASSWORD must be at most 72 bytes"))
	}

	for _, prefix := range c.AssetPrefixes {
		if !strings.HasPrefix(prefix, "/") || prefix == "/" {
			result = multierror.Append(result, fmt.Errorf("ASSET_PREFIXES: %q must start with / and name a directory", prefix))
		}
	}

	if c.AdminSessionTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("ADMIN_SESSION_TTL must be positive"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	c.location = loc
	return nil
}

// Location returns the site timezone. Valid after a successful Validate;
// UTC otherwise.
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

// StorageOptions returns the options for opening the configured grant store.
func (c *Config) StorageOptions() storage.Options {
	return storage.Options{
		Backend:       c.StoreBackend,
		DatabasePath:  c.DatabasePath,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		RedisKey:      c.RedisKey,
	}
}

// splitList parses a comma-separated setting. "none" yields an empty list.
func splitList(raw string) []string {
	if strings.EqualFold(raw, "none") {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}
