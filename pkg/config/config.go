package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/cura/pkg/sso"
)

// Config holds all agent configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Cache         CacheConfig         `yaml:"cache"`
	Notify        NotifyConfig        `yaml:"notify"`
	Audit         AuditConfig         `yaml:"audit"`
	SSO           SSOConfig           `yaml:"sso"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// LoginRatePerMinute limits login attempts per client address; zero disables the limit
	LoginRatePerMinute int `yaml:"login_rate_per_minute"`
	LoginBurst         int `yaml:"login_burst"`
}

// SessionConfig holds session lifecycle settings
type SessionConfig struct {
	QuickLoginTTL     time.Duration `yaml:"quick_login_ttl"`
	InactivityTimeout time.Duration `yaml:"inactivity_timeout"`
	// ReconcileInterval is negative to disable periodic reconciliation
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`

	BreakGlassEnabled bool `yaml:"break_glass_enabled"`
	// BreakGlassCredentials is a comma separated list of email:bcrypt-hash pairs
	BreakGlassCredentials string `yaml:"break_glass_credentials"`
}

// DirectoryConfig selects the user directory database
type DirectoryConfig struct {
	Driver     string `yaml:"driver"`
	DSN        string `yaml:"dsn"`
	DeviceID   string `yaml:"device_id"`
	BcryptCost int    `yaml:"bcrypt_cost"`

	BootstrapAdminEmail    string `yaml:"bootstrap_admin_email"`
	BootstrapAdminUsername string `yaml:"bootstrap_admin_username"`
	BootstrapAdminPassword string `yaml:"-"`
}

// CacheConfig selects where the agent keeps its persisted session state
type CacheConfig struct {
	// Type is memory, file or redis
	Type     string `yaml:"type"`
	FilePath string `yaml:"file_path"`
	// Watch reloads the session when another process edits the file store
	Watch bool `yaml:"watch"`

	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// NotifyConfig configures notification delivery
type NotifyConfig struct {
	SuppressionWindow time.Duration `yaml:"suppression_window"`
	WebhookURL        string        `yaml:"webhook_url"`
	WebhookSecret     string        `yaml:"-"`
	WebhookTimeout    time.Duration `yaml:"webhook_timeout"`
}

// AuditConfig configures the audit trail. An empty Dir logs audit events through the
// process logger only.
type AuditConfig struct {
	Dir      string `yaml:"dir"`
	MaxSize  int64  `yaml:"max_size"` // bytes before the journal rotates
	MaxFiles int    `yaml:"max_files"`
}

// SSOConfig lists the federated identity providers
type SSOConfig struct {
	// BaseURL is the externally visible address of the agent, used by SAML
	BaseURL   string               `yaml:"base_url"`
	Providers []sso.ProviderConfig `yaml:"providers"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
	// Fraction of root traces kept; child spans follow their parent
	OTelSampleRatio float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               "8700",
			ReadTimeout:        15 * time.Second,
			WriteTimeout:       15 * time.Second,
			IdleTimeout:        60 * time.Second,
			ShutdownTimeout:    30 * time.Second,
			LoginRatePerMinute: 10,
			LoginBurst:         5,
		},
		Session: SessionConfig{
			QuickLoginTTL:     time.Hour,
			InactivityTimeout: 8 * time.Hour,
			ReconcileInterval: 5 * time.Minute,
		},
		Directory: DirectoryConfig{
			Driver:   "sqlite3",
			DSN:      "file:cura.db?_foreign_keys=on",
			DeviceID: hostname(),
		},
		Cache: CacheConfig{
			Type:     "file",
			FilePath: "cura-session.json",
			Watch:    true,
			RedisURL: "redis://localhost:6379",
		},
		Notify: NotifyConfig{
			SuppressionWindow: 60 * time.Second,
			WebhookTimeout:    10 * time.Second,
		},
		Audit: AuditConfig{MaxSize: 10 << 20, MaxFiles: 10},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "text",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "cura-sessiond",
			OTelServiceVersion: "dev",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by CURA_CONFIG_FILE
// and then CURA_* environment variables, in increasing precedence.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CURA_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("CURA_HOST", s.Host)
	s.Port = getEnv("CURA_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("CURA_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("CURA_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("CURA_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("CURA_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.LoginRatePerMinute = getEnvInt("CURA_LOGIN_RATE_PER_MINUTE", s.LoginRatePerMinute)
	s.LoginBurst = getEnvInt("CURA_LOGIN_BURST", s.LoginBurst)

	ss := &c.Session
	ss.QuickLoginTTL = getEnvDuration("CURA_QUICK_LOGIN_TTL", ss.QuickLoginTTL)
	ss.InactivityTimeout = getEnvDuration("CURA_INACTIVITY_TIMEOUT", ss.InactivityTimeout)
	ss.ReconcileInterval = getEnvDuration("CURA_RECONCILE_INTERVAL", ss.ReconcileInterval)
	ss.BreakGlassEnabled = getEnvBool("CURA_BREAK_GLASS_ENABLED", ss.BreakGlassEnabled)
	ss.BreakGlassCredentials = getEnv("CURA_BREAK_GLASS_CREDENTIALS", ss.BreakGlassCredentials)

	d := &c.Directory
	d.Driver = getEnv("CURA_DIRECTORY_DRIVER", d.Driver)
	d.DSN = getEnv("CURA_DIRECTORY_DSN", d.DSN)
	d.DeviceID = getEnv("CURA_DEVICE_ID", d.DeviceID)
	d.BcryptCost = getEnvInt("CURA_BCRYPT_COST", d.BcryptCost)
	d.BootstrapAdminEmail = getEnv("CURA_BOOTSTRAP_ADMIN_EMAIL", d.BootstrapAdminEmail)
	d.BootstrapAdminUsername = getEnv("CURA_BOOTSTRAP_ADMIN_USERNAME", d.BootstrapAdminUsername)
	d.BootstrapAdminPassword = getEnv("CURA_BOOTSTRAP_ADMIN_PASSWORD", d.BootstrapAdminPassword)

	ca := &c.Cache
	ca.Type = strings.ToLower(getEnv("CURA_CACHE_TYPE", ca.Type))
	ca.FilePath = getEnv("CURA_CACHE_FILE", ca.FilePath)
	ca.Watch = getEnvBool("CURA_CACHE_WATCH", ca.Watch)
	ca.RedisURL = getEnv("CURA_REDIS_URL", ca.RedisURL)
	ca.RedisPassword = getEnv("CURA_REDIS_PASSWORD", ca.RedisPassword)
	ca.RedisDB = getEnvInt("CURA_REDIS_DB", ca.RedisDB)
	ca.RedisPrefix = getEnv("CURA_REDIS_PREFIX", ca.RedisPrefix)

	n := &c.Notify
	n.SuppressionWindow = getEnvDuration("CURA_NOTIFY_SUPPRESSION_WINDOW", n.SuppressionWindow)
	n.WebhookURL = getEnv("CURA_NOTIFY_WEBHOOK_URL", n.WebhookURL)
	n.WebhookSecret = getEnv("CURA_NOTIFY_WEBHOOK_SECRET", n.WebhookSecret)
	n.WebhookTimeout = getEnvDuration("CURA_NOTIFY_WEBHOOK_TIMEOUT", n.WebhookTimeout)

	c.Audit.Dir = getEnv("CURA_AUDIT_DIR", c.Audit.Dir)
	c.Audit.MaxSize = int64(getEnvInt("CURA_AUDIT_MAX_SIZE", int(c.Audit.MaxSize)))
	c.Audit.MaxFiles = getEnvInt("CURA_AUDIT_MAX_FILES", c.Audit.MaxFiles)

	c.SSO.BaseURL = getEnv("CURA_SSO_BASE_URL", c.SSO.BaseURL)

	o := &c.Observability
	o.LogLevel = getEnv("CURA_LOG_LEVEL", o.LogLevel)
	o.LogFormat = getEnv("CURA_LOG_FORMAT", o.LogFormat)
	o.MetricsEnabled = getEnvBool("CURA_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("CURA_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("CURA_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("CURA_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("CURA_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("CURA_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat("CURA_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// Address is the listen address of the HTTP server
func (s ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.LoginRatePerMinute < 0 || c.Server.LoginBurst < 0 {
		return fmt.Errorf("login rate limit must not be negative")
	}

	if c.Session.QuickLoginTTL <= 0 {
		return fmt.Errorf("quick login TTL must be positive")
	}
	if c.Session.InactivityTimeout <= 0 {
		return fmt.Errorf("inactivity timeout must be positive")
	}
	if c.Session.BreakGlassEnabled && strings.TrimSpace(c.Session.BreakGlassCredentials) == "" {
		return fmt.Errorf("break-glass login is enabled without credentials")
	}

	switch c.Directory.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid directory driver: %s (must be sqlite3 or postgres)", c.Directory.Driver)
	}
	if c.Directory.DSN == "" {
		return fmt.Errorf("directory DSN is required")
	}
	if c.Directory.BootstrapAdminEmail != "" && c.Directory.BootstrapAdminPassword == "" {
		return fmt.Errorf("bootstrap admin password is required with a bootstrap admin email")
	}

	switch c.Cache.Type {
	case "memory":
	case "file":
		if c.Cache.FilePath == "" {
			return fmt.Errorf("cache file path is required for file cache")
		}
	case "redis":
		if c.Cache.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis cache")
		}
	default:
		return fmt.Errorf("invalid cache type: %s (must be memory, file, or redis)", c.Cache.Type)
	}

	seen := make(map[string]bool, len(c.SSO.Providers))
	for _, p := range c.SSO.Providers {
		if p.Name == "" {
			return fmt.Errorf("sso provider name is required")
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate sso provider: %s", p.Name)
		}
		seen[p.Name] = true
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Observability.LogFormat)
	}
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("invalid otel sample ratio: %v (must be between 0 and 1)", r)
		}
	}

	return nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "default"
	}
	return name
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
