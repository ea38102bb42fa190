package sestemplates

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the complete service configuration.
type Config struct {
	// Provider contains provider-specific configuration.
	Provider ProviderConfig `yaml:"provider"`

	// RateLimit contains the per-caller throttling windows.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Server contains HTTP listener configuration.
	Server ServerConfig `yaml:"server"`

	// Monitoring contains observability configuration.
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ProviderConfig contains provider-specific settings.
type ProviderConfig struct {
	// Type specifies the email template provider to use.
	Type ProviderType `yaml:"type" env:"SES_PROVIDER"`

	// AccessKeyID and SecretAccessKey are read once at startup. When empty the
	// default AWS credential chain is used.
	AccessKeyID     string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string `yaml:"session_token" env:"AWS_SESSION_TOKEN"`

	// DefaultRegion is used when a request names no region.
	DefaultRegion string `yaml:"default_region" env:"AWS_REGION"`

	// Endpoint overrides the SES endpoint (local emulators).
	Endpoint string `yaml:"endpoint" env:"SES_ENDPOINT"`

	// ConfigurationSet is attached to every templated send when set.
	ConfigurationSet string `yaml:"configuration_set" env:"SES_CONFIGURATION_SET"`

	// Timeout is the maximum time to wait for a single provider call.
	Timeout time.Duration `yaml:"timeout" env:"SES_TIMEOUT"`

	// ListMaxItems is the page size used when a list request names none.
	ListMaxItems int `yaml:"list_max_items" env:"SES_LIST_MAX_ITEMS"`
}

// Credentials returns the static credentials configured for the provider.
func (p ProviderConfig) Credentials() Credentials {
	return Credentials{
		AccessKeyID:     p.AccessKeyID,
		SecretAccessKey: p.SecretAccessKey,
		SessionToken:    p.SessionToken,
	}
}

// ProviderType represents the type of email template provider.
type ProviderType string

const (
	// ProviderAWSSES represents Amazon Simple Email Service.
	ProviderAWSSES ProviderType = "aws_ses"
)

// String returns the string representation of the provider type.
func (pt ProviderType) String() string {
	return string(pt)
}

// Valid checks if the provider type is supported.
func (pt ProviderType) Valid() bool {
	return pt == ProviderAWSSES
}

// RateLimitConfig contains rate limiting configuration.
type RateLimitConfig struct {
	// Enabled indicates whether rate limiting is enabled.
	Enabled bool `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`

	// General applies to every /api request.
	General WindowConfig `yaml:"general" envPrefix:"RATE_LIMIT_GENERAL_"`

	// Send applies to send requests in addition to General.
	Send WindowConfig `yaml:"send" envPrefix:"RATE_LIMIT_SEND_"`

	// Store selects the counter backend: "memory" or "redis".
	Store string `yaml:"store" env:"RATE_LIMIT_STORE"`

	// RedisURL is the connection URL used by the redis store.
	RedisURL string `yaml:"redis_url" env:"REDIS_URL"`

	// KeyPrefix namespaces counter keys in shared stores.
	KeyPrefix string `yaml:"key_prefix" env:"RATE_LIMIT_KEY_PREFIX"`

	// CleanupInterval controls eviction of expired windows in the memory store.
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"RATE_LIMIT_CLEANUP_INTERVAL"`
}

// Rate limit store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// WindowConfig describes one fixed window.
type WindowConfig struct {
	// Limit is the number of admitted requests per window.
	Limit int `yaml:"limit" env:"LIMIT"`

	// Period is the window length.
	Period time.Duration `yaml:"period" env:"PERIOD"`

	// Message is returned to rejected callers.
	Message string `yaml:"message" env:"MESSAGE"`
}

// ServerConfig contains HTTP listener configuration.
type ServerConfig struct {
	// Addr is the listen address. Takes precedence over Port.
	Addr string `yaml:"addr" env:"HTTP_ADDR"`

	// Port is used when Addr is empty.
	Port string `yaml:"port" env:"PORT"`

	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT"`

	// TrustProxyHeaders derives the caller address from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool `yaml:"trust_proxy_headers" env:"TRUST_PROXY_HEADERS"`

	// StaticDir serves a single-page application when set.
	StaticDir string `yaml:"static_dir" env:"STATIC_DIR"`

	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// ListenAddr returns the address the HTTP server binds to.
func (s ServerConfig) ListenAddr() string {
	if s.Addr != "" {
		return s.Addr
	}
	return net.JoinHostPort("", s.Port)
}

// MonitoringConfig contains observability configuration.
type MonitoringConfig struct {
	// Tracing contains distributed tracing configuration.
	Tracing TracingConfig `yaml:"tracing"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled indicates whether spans are recorded.
	Enabled bool `yaml:"enabled" env:"TRACING_ENABLED"`

	// ServiceName is the instrumentation name used for the tracer.
	ServiceName string `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled indicates whether metrics collection is enabled.
	Enabled bool `yaml:"enabled" env:"METRICS_ENABLED"`

	// Namespace is the metrics namespace/prefix.
	Namespace string `yaml:"namespace" env:"METRICS_NAMESPACE"`

	// Path is the HTTP path the exposition handler is mounted on.
	Path string `yaml:"path" env:"METRICS_PATH"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `yaml:"level" env:"LOG_LEVEL"`

	// Format is the log format (json, console).
	Format string `yaml:"format" env:"LOG_FORMAT"`

	// Output is where to write logs (stdout, stderr, or file path).
	Output string `yaml:"output" env:"LOG_OUTPUT"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			Type:         ProviderAWSSES,
			Timeout:      30 * time.Second,
			ListMaxItems: DefaultListMaxItems,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			General: WindowConfig{
				Limit:   100,
				Period:  15 * time.Minute,
				Message: GeneralLimitMessage,
			},
			Send: WindowConfig{
				Limit:   30,
				Period:  15 * time.Minute,
				Message: SendLimitMessage,
			},
			Store:           StoreMemory,
			KeyPrefix:       "sestemplates:rl",
			CleanupInterval: time.Minute,
		},
		Server: ServerConfig{
			Port:            "5000",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Monitoring: MonitoringConfig{
			Tracing: TracingConfig{
				Enabled:     true,
				ServiceName: "sestemplates",
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "sestemplates",
				Path:      "/metrics",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
		},
	}
}

// LoadConfig builds a configuration from defaults, an optional YAML file,
// a .env file in the working directory, the process environment and opts,
// in that order. The result is validated.
func LoadConfig(path string, opts ...Option) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Apply applies functional options in order.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks if the configuration is valid and complete.
func (c *Config) Validate() error {
	if !c.Provider.Type.Valid() {
		return &ValidationError{
			Field:   "provider.type",
			Message: "invalid or unsupported provider type: " + string(c.Provider.Type),
		}
	}

	if c.Provider.Timeout <= 0 {
		return &ValidationError{
			Field:   "provider.timeout",
			Message: "timeout must be greater than 0",
		}
	}

	if c.Provider.ListMaxItems <= 0 {
		return &ValidationError{
			Field:   "provider.list_max_items",
			Message: "list max items must be greater than 0",
		}
	}

	if c.Provider.AccessKeyID != "" && c.Provider.SecretAccessKey == "" {
		return &ValidationError{
			Field:   "provider.secret_access_key",
			Message: "secret access key is required when an access key id is set",
		}
	}

	if c.RateLimit.Enabled {
		if err := c.RateLimit.General.validate("rate_limit.general"); err != nil {
			return err
		}
		if err := c.RateLimit.Send.validate("rate_limit.send"); err != nil {
			return err
		}

		switch strings.ToLower(c.RateLimit.Store) {
		case StoreMemory:
		case StoreRedis:
			if c.RateLimit.RedisURL == "" {
				return &ValidationError{
					Field:   "rate_limit.redis_url",
					Message: "redis url is required for the redis store",
				}
			}
		default:
			return &ValidationError{
				Field:   "rate_limit.store",
				Message: "unsupported rate limit store: " + c.RateLimit.Store,
			}
		}
	}

	if c.Server.Addr == "" && c.Server.Port == "" {
		return &ValidationError{
			Field:   "server.addr",
			Message: "listen address or port is required",
		}
	}

	if c.Server.ShutdownTimeout <= 0 {
		return &ValidationError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be greater than 0",
		}
	}

	switch c.Monitoring.Logging.Format {
	case "json", "console", "text":
	default:
		return &ValidationError{
			Field:   "monitoring.logging.format",
			Message: "unsupported log format: " + c.Monitoring.Logging.Format,
		}
	}

	return nil
}

func (w WindowConfig) validate(field string) error {
	if w.Limit <= 0 {
		return &ValidationError{
			Field:   field + ".limit",
			Message: "limit must be greater than 0",
		}
	}
	if w.Period <= 0 {
		return &ValidationError{
			Field:   field + ".period",
			Message: "period must be greater than 0",
		}
	}
	return nil
}
