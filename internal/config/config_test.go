package config

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/sipico/preview-gate/internal/storage"
)

var allVars = []string{
	"LOG_LEVEL", "LISTEN_ADDR", "METRICS_LISTEN_ADDR", "UPSTREAM_URL", "SITE_URL",
	"SITE_TIMEZONE", "STORE_BACKEND", "DATABASE_PATH", "REDIS_ADDR", "REDIS_PASSWORD",
	"REDIS_DB", "REDIS_KEY", "ADMIN_PASSWORD", "ADMIN_SESSION_TTL", "TRUST_FORWARDED_PROTO",
	"ASSET_PREFIXES", "ASSET_EXTENSIONS",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allVars {
		t.Setenv(name, "")
	}
}

func validConfig() *Config {
	return &Config{
		LogLevel:        "info",
		UpstreamURL:     "http://wordpress:80",
		SiteURL:         "https://example.com",
		SiteTimezone:    "UTC",
		StoreBackend:    storage.BackendSQLite,
		DatabasePath:    "/data/preview.db",
		AdminPassword:   "hunter2",
		AdminSessionTTL: time.Hour,
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"ListenAddr", cfg.ListenAddr, ":8080"},
		{"MetricsListenAddr", cfg.MetricsListenAddr, "localhost:9090"},
		{"SiteURL", cfg.SiteURL, "http://localhost:8080"},
		{"SiteTimezone", cfg.SiteTimezone, "UTC"},
		{"StoreBackend", cfg.StoreBackend, "sqlite"},
		{"DatabasePath", cfg.DatabasePath, "/data/preview.db"},
		{"RedisAddr", cfg.RedisAddr, "localhost:6379"},
		{"RedisDB", cfg.RedisDB, 0},
		{"RedisKey", cfg.RedisKey, "preview:grants"},
		{"AdminSessionTTL", cfg.AdminSessionTTL, 24 * time.Hour},
		{"TrustForwardedProto", cfg.TrustForwardedProto, false},
		{"UpstreamURL", cfg.UpstreamURL, ""},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SITE_URL", "https://example.com/")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ADMIN_SESSION_TTL", "90m")
	t.Setenv("TRUST_FORWARDED_PROTO", "true")
	t.Setenv("UPSTREAM_URL", "http://wordpress:80")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want lowercased debug", cfg.LogLevel)
	}
	if cfg.SiteURL != "https://example.com" {
		t.Errorf("SiteURL = %q, want trailing slash trimmed", cfg.SiteURL)
	}
	if cfg.StoreBackend != "redis" || cfg.RedisDB != 3 {
		t.Errorf("redis settings = %q/%d", cfg.StoreBackend, cfg.RedisDB)
	}
	if cfg.AdminSessionTTL != 90*time.Minute {
		t.Errorf("AdminSessionTTL = %v, want 90m", cfg.AdminSessionTTL)
	}
	if !cfg.TrustForwardedProto {
		t.Error("TrustForwardedProto = false, want true")
	}
	if cfg.UpstreamURL != "http://wordpress:80" {
		t.Errorf("UpstreamURL = %q", cfg.UpstreamURL)
	}
}

func TestLoad_AssetRules(t *testing.T) {
	tests := []struct {
		name         string
		prefixes     string
		extensions   string
		wantPrefixes []string
		wantExts     []string
	}{
		{
			name:         "defaults",
			wantPrefixes: []string{"/wp-content", "/wp-includes"},
			wantExts:     strings.Split(defaultAssetExtensions, ","),
		},
		{
			name:         "custom lists are trimmed",
			prefixes:     " /static , /media ,",
			extensions:   "css, js",
			wantPrefixes: []string{"/static", "/media"},
			wantExts:     []string{"css", "js"},
		},
		{
			name:       "none disables",
			prefixes:   "none",
			extensions: "NONE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("ASSET_PREFIXES", tt.prefixes)
			t.Setenv("ASSET_EXTENSIONS", tt.extensions)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v, want nil", err)
			}
			if !slices.Equal(cfg.AssetPrefixes, tt.wantPrefixes) {
				t.Errorf("AssetPrefixes = %q, want %q", cfg.AssetPrefixes, tt.wantPrefixes)
			}
			if !slices.Equal(cfg.AssetExtensions, tt.wantExts) {
				t.Errorf("AssetExtensions = %q, want %q", cfg.AssetExtensions, tt.wantExts)
			}
		})
	}
}

func TestValidate_AssetPrefixes(t *testing.T) {
	for _, prefix := range []string{"wp-content", "/"} {
		cfg := validConfig()
		cfg.AssetPrefixes = []string{"/wp-includes", prefix}
		err := cfg.Validate()
		if err == nil || !strings.Contains(err.Error(), "ASSET_PREFIXES") {
			t.Errorf("prefix %q: Validate() error = %v, want ASSET_PREFIXES violation", prefix, err)
		}
	}

	cfg := validConfig()
	cfg.AssetPrefixes = []string{"/wp-content"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestLoad_MalformedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("REDIS_DB", "zero")
	t.Setenv("ADMIN_SESSION_TTL", "a day")
	t.Setenv("TRUST_FORWARDED_PROTO", "sometimes")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() error = nil, want parse errors")
	}

	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("error %T is not a multierror", err)
	}
	if len(merr.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(merr.Errors), err)
	}
	for _, name := range []string{"REDIS_DB", "ADMIN_SESSION_TTL", "TRUST_FORWARDED_PROTO"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error does not mention %s: %v", name, err)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"valid redis", func(c *Config) { c.StoreBackend = "redis"; c.RedisAddr = "localhost:6379" }, ""},
		{"missing upstream", func(c *Config) { c.UpstreamURL = "" }, "UPSTREAM_URL environment variable is required"},
		{"upstream not http", func(c *Config) { c.UpstreamURL = "ftp://x" }, "UPSTREAM_URL"},
		{"site url without host", func(c *Config) { c.SiteURL = "https://" }, "SITE_URL"},
		{"bad timezone", func(c *Config) { c.SiteTimezone = "Mars/Olympus" }, "SITE_TIMEZONE"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LOG_LEVEL"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "etcd" }, "STORE_BACKEND"},
		{"sqlite without path", func(c *Config) { c.DatabasePath = "" }, "DATABASE_PATH"},
		{"redis without addr", func(c *Config) { c.StoreBackend = "redis"; c.RedisAddr = "" }, "REDIS_ADDR"},
		{"missing password", func(c *Config) { c.AdminPassword = "" }, "ADMIN_PASSWORD environment variable is required"},
		{"long password", func(c *Config) { c.AdminPassword = strings.Repeat("x", 73) }, "at most 72 bytes"},
		{"zero session ttl", func(c *Config) { c.AdminSessionTTL = 0 }, "ADMIN_SESSION_TTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.UpstreamURL = ""
	cfg.AdminPassword = ""
	cfg.SiteTimezone = "Nowhere/Special"

	err := cfg.Validate()
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("Validate() error = %v, want multierror", err)
	}
	if len(merr.Errors) != 3 {
		t.Errorf("got %d violations, want 3: %v", len(merr.Errors), err)
	}
}

func TestLocation(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	if cfg.Location() != time.UTC {
		t.Error("Location() before Validate should be UTC")
	}

	cfg.SiteTimezone = "Europe/Amsterdam"
	if err := cfg.Validate(); err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	if got := cfg.Location().String(); got != "Europe/Amsterdam" {
		t.Errorf("Location() = %q, want Europe/Amsterdam", got)
	}
}

func TestStorageOptions(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.StoreBackend = "redis"
	cfg.RedisAddr = "cache:6379"
	cfg.RedisDB = 2
	cfg.RedisKey = "k"

	opts := cfg.StorageOptions()
	want := storage.Options{Backend: "redis", DatabasePath: "/data/preview.db", RedisAddr: "cache:6379", RedisDB: 2, RedisKey: "k"}
	if opts != want {
		t.Errorf("StorageOptions() = %+v, want %+v", opts, want)
	}
}
