// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-multierror"
	toml "github.com/pelletier/go-toml/v2"

	"vault-gateway/internal/model"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/vault-gateway/config.toml",
	"configs/config.toml",
}

var apiVersionPattern = regexp.MustCompile(`^v\d+(\.\d+)?$`)

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config      string `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host        string `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port        int    `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	LogLevel    string `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	APIVersion  string `kong:"help='Backend API version, e.g. v24.1 (overrides config).',env='VAULT_API_VERSION'"`
	DefaultHost string `kong:"help='Backend host used when the request names none (overrides config).',env='VAULT_DEFAULT_HOST'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Backend     BackendConfig     `toml:"backend"`
	Policy      PolicyConfig      `toml:"policy"`
	Credentials CredentialsConfig `toml:"credentials"`
	Log         LogConfig         `toml:"log"`
	Metrics     MetricsConfig     `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (8000); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// BackendConfig holds document-management backend connection settings.
type BackendConfig struct {
	APIVersion      string   `toml:"api_version"`
	DefaultHost     string   `toml:"default_host"`
	AllowedHosts    []string `toml:"allowed_hosts"`
	TimeoutSeconds  int      `toml:"timeout_seconds"`
	IdleConnections int      `toml:"idle_connections"`
	MaxPages        int      `toml:"max_pages"` // 0 means unlimited
	OperationHeader string   `toml:"operation_header"`
	HostHeader      string   `toml:"host_header"`

	// Scheme is always https for loaded configs; tests against httptest
	// servers set it to http directly.
	Scheme string `toml:"-"`
}

// PolicyConfig selects the behavior switches of the gateway core.
type PolicyConfig struct {
	CredentialSource string `toml:"credential_source"`
	VersionInjection *bool  `toml:"version_injection"`
	StrictStatus     *bool  `toml:"strict_status"`
	HTTPErrorPolicy  string `toml:"http_error_policy"`
}

// CredentialsConfig holds the per-host credential table. Secrets are never
// stored inline; each entry names references resolved by the secret provider.
type CredentialsConfig struct {
	SecretProvider string                          `toml:"secret_provider"`
	SecretsFile    string                          `toml:"secrets_file"`
	Hosts          map[string]HostCredentialConfig `toml:"hosts"`
}

// HostCredentialConfig names the secrets holding one host's login.
type HostCredentialConfig struct {
	UsernameRef string `toml:"username_ref" json:"username_ref"`
	PasswordRef string `toml:"password_ref" json:"password_ref"`
}

// Validate implements validation.Validatable.
func (h HostCredentialConfig) Validate() error {
	return validation.ValidateStruct(&h,
		validation.Field(&h.UsernameRef, validation.Required),
		validation.Field(&h.PasswordRef, validation.Required),
	)
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

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/vault-gateway/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
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
	if cli.APIVersion != "" {
		c.Backend.APIVersion = cli.APIVersion
	}
	if cli.DefaultHost != "" {
		c.Backend.DefaultHost = cli.DefaultHost
	}
}

// validate reports every configuration problem at once.
func (c *Config) validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf(format, args...))
	}

	// Backend.
	if c.Backend.APIVersion != "" {
		if err := validation.Validate(c.Backend.APIVersion, validation.Match(apiVersionPattern)); err != nil {
			add("backend.api_version must look like v24.1; got %q", c.Backend.APIVersion)
		}
	}
	for _, h := range c.Backend.AllowedHosts {
		if !validHost(h) {
			add("backend.allowed_hosts entry %q must be a bare host name", h)
		}
	}
	if c.Backend.DefaultHost != "" {
		if !validHost(c.Backend.DefaultHost) {
			add("backend.default_host %q must be a bare host name", c.Backend.DefaultHost)
		} else if !c.HostAllowed(c.Backend.DefaultHost) {
			add("backend.default_host %q is not listed in backend.allowed_hosts or credentials.hosts", c.Backend.DefaultHost)
		}
	}

	// Numeric bounds.
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add("server.port must be 0–65535; got %d", c.Server.Port)
	}
	if c.Server.BodyMaxBytes < 0 {
		add("server.body_max_bytes must be non-negative; got %d", c.Server.BodyMaxBytes)
	}
	if c.Backend.TimeoutSeconds < 0 {
		add("backend.timeout_seconds must be non-negative; got %d", c.Backend.TimeoutSeconds)
	}
	if c.Backend.IdleConnections < 0 {
		add("backend.idle_connections must be non-negative; got %d", c.Backend.IdleConnections)
	}
	if c.Backend.MaxPages < 0 {
		add("backend.max_pages must be non-negative; got %d", c.Backend.MaxPages)
	}
	if c.Server.RateLimit.Enabled && c.Server.RateLimit.RequestsPerSecond <= 0 {
		add("server.rate_limit.requests_per_second must be > 0 when rate limiting is enabled; got %v", c.Server.RateLimit.RequestsPerSecond)
	}

	// Policy.
	switch model.CredentialSource(strings.ToLower(c.Policy.CredentialSource)) {
	case model.CredentialsFromHeaders, "":
		if len(c.Backend.AllowedHosts) == 0 {
			add("backend.allowed_hosts is required when policy.credential_source is %q", model.CredentialsFromHeaders)
		}
	case model.CredentialsFromTable:
		if len(c.Credentials.Hosts) == 0 {
			add("credentials.hosts must have at least one entry when policy.credential_source is %q", model.CredentialsFromTable)
		}
	default:
		add("policy.credential_source must be one of: headers, table; got %q", c.Policy.CredentialSource)
	}
	switch model.HTTPErrorPolicy(strings.ToLower(c.Policy.HTTPErrorPolicy)) {
	case model.HTTPErrorTransport, model.HTTPErrorLogical, "":
		// valid
	default:
		add("policy.http_error_policy must be one of: transport, logical; got %q", c.Policy.HTTPErrorPolicy)
	}

	// Credentials table.
	switch strings.ToLower(c.Credentials.SecretProvider) {
	case "env", "":
	case "file":
		if c.Credentials.SecretsFile == "" {
			add("credentials.secrets_file is required when credentials.secret_provider is \"file\"")
		}
	default:
		add("credentials.secret_provider must be one of: env, file; got %q", c.Credentials.SecretProvider)
	}
	for host, entry := range c.Credentials.Hosts {
		if !validHost(host) {
			add("credentials.hosts key %q must be a bare host name", host)
		}
		if err := entry.Validate(); err != nil {
			add("credentials.hosts.%q: %v", host, err)
		}
	}

	// Log fields.
	level := strings.ToLower(c.Log.Level)
	switch level {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		add("log.level must be one of: debug, info, warn, error; got %q", c.Log.Level)
	}
	format := strings.ToLower(c.Log.Format)
	switch format {
	case "json", "text", "":
		// valid
	default:
		add("log.format must be one of: json, text; got %q", c.Log.Format)
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled && c.Metrics.Path != "" {
		p := c.Metrics.Path
		if p[0] != '/' {
			add("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range []string{"/api", "/healthz", "/gateway/status"} {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				add("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return result.ErrorOrNil()
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (8000).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Backend.APIVersion == "" {
		c.Backend.APIVersion = "v24.1"
	}
	if c.Backend.Scheme == "" {
		c.Backend.Scheme = "https"
	}
	if c.Backend.TimeoutSeconds == 0 {
		c.Backend.TimeoutSeconds = 120
	}
	if c.Backend.IdleConnections == 0 {
		c.Backend.IdleConnections = 100
	}
	if c.Backend.OperationHeader == "" {
		c.Backend.OperationHeader = "X-Operation-Id"
	}
	if c.Backend.HostHeader == "" {
		c.Backend.HostHeader = "X-Backend-Host"
	}
	if c.Policy.CredentialSource == "" {
		c.Policy.CredentialSource = string(model.CredentialsFromHeaders)
	}
	if c.Policy.HTTPErrorPolicy == "" {
		c.Policy.HTTPErrorPolicy = string(model.HTTPErrorTransport)
	}
	if c.Credentials.SecretProvider == "" {
		c.Credentials.SecretProvider = "env"
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

// GatewayPolicy returns the core behavior switches, with defaults for unset fields.
func (c *Config) GatewayPolicy() model.Policy {
	p := model.DefaultPolicy()
	if c.Policy.CredentialSource != "" {
		p.CredentialSource = model.CredentialSource(strings.ToLower(c.Policy.CredentialSource))
	}
	if c.Policy.VersionInjection != nil {
		p.VersionInjection = *c.Policy.VersionInjection
	}
	if c.Policy.StrictStatus != nil {
		p.StrictStatus = *c.Policy.StrictStatus
	}
	if c.Policy.HTTPErrorPolicy != "" {
		p.HTTPErrorPolicy = model.HTTPErrorPolicy(strings.ToLower(c.Policy.HTTPErrorPolicy))
	}
	return p
}

// HostAllowed reports whether the gateway may forward to host: it must be
// listed in backend.allowed_hosts or have a credentials.hosts entry.
func (c *Config) HostAllowed(host string) bool {
	host = strings.ToLower(host)
	if slices.ContainsFunc(c.Backend.AllowedHosts, func(h string) bool {
		return strings.ToLower(h) == host
	}) {
		return true
	}
	for h := range c.Credentials.Hosts {
		if strings.ToLower(h) == host {
			return true
		}
	}
	return false
}

// validHost reports whether s is a host[:port] with no scheme or path.
func validHost(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/?#@ ")
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
