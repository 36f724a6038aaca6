// Package config handles TOML configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"permit-gateway/internal/route"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/permit-gateway/config.toml",
	"configs/config.toml",
}

// reservedPaths are served by the gateway itself and cannot host metrics.
var reservedPaths = []string{route.APIPrefix, "/health", "/gateway/status"}

// Default upstream addresses used when neither the config file nor the
// environment names them.
const (
	DefaultDocumentsURL = "http://127.0.0.1:8000"
	DefaultAIURL        = "http://localhost:3000"
)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config       string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host         string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port         int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel     string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	DocumentsURL string `kong:"name='documents-url',help='Document-processing backend base URL (overrides config).',env='DOCUMENTS_BACKEND_URL'"`
	AIURL        string `kong:"name='ai-url',help='AI backend base URL (overrides config).',env='AI_BACKEND_URL'"`
	StaticDir    string `kong:"help='Directory holding the built single-page app (overrides config).',env='STATIC_DIR'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Backends BackendsConfig `toml:"backends"`
	Upstream UpstreamConfig `toml:"upstream"`
	Routes   []RouteConfig  `toml:"routes"`
	Static   StaticConfig   `toml:"static"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (3001); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
	CORS         CORSConfig      `toml:"cors"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// CORSConfig lists the origins allowed to call the gateway from a browser.
type CORSConfig struct {
	AllowOrigins []string `toml:"allow_origins"`
}

// BackendsConfig holds the two upstream services.
type BackendsConfig struct {
	Documents BackendConfig `toml:"documents"`
	AI        BackendConfig `toml:"ai"`
}

// BackendConfig describes a single upstream service.
type BackendConfig struct {
	BaseURL string `toml:"base_url"`
	Label   string `toml:"label"` // human-readable name used in error responses
}

// UpstreamConfig holds upstream connection settings shared by all backends.
type UpstreamConfig struct {
	TimeoutSeconds  int `toml:"timeout_seconds"` // 0 leaves the transport without an overall timeout
	IdleConnections int `toml:"idle_connections"`
}

// RouteConfig overrides one entry of the default route table.
type RouteConfig struct {
	Prefix         string `toml:"prefix"`
	Backend        string `toml:"backend"`
	PreservePrefix bool   `toml:"preserve_prefix"`
}

// StaticConfig points at the built single-page app.
type StaticConfig struct {
	Dir   string `toml:"dir"`
	Index string `toml:"index"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file, if any, and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/permit-gateway/config.toml then configs/config.toml; if neither exists
// the built-in defaults are used.
func Load(cli *CLI) (*Config, error) {
	var cfg Config

	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.filePath = path
	}

	cfg.applyCLI(cli)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	cfg.setDefaults()

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
	if cli.DocumentsURL != "" {
		c.Backends.Documents.BaseURL = cli.DocumentsURL
	}
	if cli.AIURL != "" {
		c.Backends.AI.BaseURL = cli.AIURL
	}
	if cli.StaticDir != "" {
		c.Static.Dir = cli.StaticDir
	}
}

func (c *Config) validate() error {
	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 0-65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		return fmt.Errorf("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Upstream.TimeoutSeconds < 0 {
		return fmt.Errorf("upstream.timeout_seconds must be non-negative; got %d", c.Upstream.TimeoutSeconds)
	}
	if c.Upstream.IdleConnections < 0 {
		return fmt.Errorf("upstream.idle_connections must be non-negative; got %d", c.Upstream.IdleConnections)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		return fmt.Errorf("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Backend URLs are optional; empty means the documented default.
	if err := validateBackendURL("backends.documents.base_url", c.Backends.Documents.BaseURL); err != nil {
		return err
	}
	if err := validateBackendURL("backends.ai.base_url", c.Backends.AI.BaseURL); err != nil {
		return err
	}

	for i, r := range c.Routes {
		switch r.Backend {
		case route.BackendDocuments, route.BackendAI:
		default:
			return fmt.Errorf("routes[%d].backend must be one of: %s, %s; got %q", i, route.BackendDocuments, route.BackendAI, r.Backend)
		}
	}
	if len(c.Routes) > 0 {
		if _, err := route.NewTable(c.RouteTable()); err != nil {
			return fmt.Errorf("routes: %w", err)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}

	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		return fmt.Errorf("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range reservedPaths {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

func validateBackendURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https; got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s has no host; got %q", field, raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New(field + " must not carry a query or fragment")
	}
	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key.
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3001
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 50 * 1024 * 1024 // 50 MB, filled PDFs travel through here
	}
	if len(c.Server.CORS.AllowOrigins) == 0 {
		c.Server.CORS.AllowOrigins = []string{"*"}
	}
	if c.Backends.Documents.BaseURL == "" {
		c.Backends.Documents.BaseURL = DefaultDocumentsURL
	}
	if c.Backends.Documents.Label == "" {
		c.Backends.Documents.Label = "Document backend"
	}
	if c.Backends.AI.BaseURL == "" {
		c.Backends.AI.BaseURL = DefaultAIURL
	}
	if c.Backends.AI.Label == "" {
		c.Backends.AI.Label = "AI backend"
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Static.Dir == "" {
		c.Static.Dir = "dist"
	}
	if c.Static.Index == "" {
		c.Static.Index = "index.html"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// RouteTable returns the configured routes, or the default table when the
// config file declares none.
func (c *Config) RouteTable() []route.Route {
	if len(c.Routes) == 0 {
		return route.Default()
	}
	out := make([]route.Route, len(c.Routes))
	for i, r := range c.Routes {
		out[i] = route.Route{
			Prefix:      r.Prefix,
			Backend:     r.Backend,
			StripPrefix: !r.PreservePrefix,
		}
	}
	return out
}

// BackendMap returns the backends keyed by the names used in the route table.
func (c *Config) BackendMap() map[string]BackendConfig {
	return map[string]BackendConfig{
		route.BackendDocuments: c.Backends.Documents,
		route.BackendAI:        c.Backends.AI,
	}
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
