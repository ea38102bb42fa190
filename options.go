package sestemplates

import (
	"time"
)

// Option is a functional option for configuring the service.
type Option func(*Config)

// WithAWSSES selects SES in the given default region.
func WithAWSSES(region string) Option {
	return func(c *Config) {
		c.Provider.Type = ProviderAWSSES
		c.Provider.DefaultRegion = region
	}
}

// WithAWSSESCredentials selects SES with explicit static credentials.
func WithAWSSESCredentials(region, accessKey, secretKey string) Option {
	return func(c *Config) {
		c.Provider.Type = ProviderAWSSES
		c.Provider.DefaultRegion = region
		c.Provider.AccessKeyID = accessKey
		c.Provider.SecretAccessKey = secretKey
	}
}

// WithEndpoint overrides the SES endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Provider.Endpoint = endpoint
	}
}

// WithConfigurationSet attaches an SES configuration set to every send.
func WithConfigurationSet(name string) Option {
	return func(c *Config) {
		c.Provider.ConfigurationSet = name
	}
}

// WithTimeout sets the provider operation timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Provider.Timeout = timeout
	}
}

// WithListMaxItems sets the default page size for list requests.
func WithListMaxItems(n int) Option {
	return func(c *Config) {
		c.Provider.ListMaxItems = n
	}
}

// WithGeneralRateLimit configures the window applied to every request.
func WithGeneralRateLimit(limit int, period time.Duration) Option {
	return func(c *Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.General.Limit = limit
		c.RateLimit.General.Period = period
	}
}

// WithSendRateLimit configures the window applied to send requests.
func WithSendRateLimit(limit int, period time.Duration) Option {
	return func(c *Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.Send.Limit = limit
		c.RateLimit.Send.Period = period
	}
}

// WithRedisRateLimit stores window counters in Redis.
func WithRedisRateLimit(url string) Option {
	return func(c *Config) {
		c.RateLimit.Enabled = true
		c.RateLimit.Store = StoreRedis
		c.RateLimit.RedisURL = url
	}
}

// WithoutRateLimit disables rate limiting.
func WithoutRateLimit() Option {
	return func(c *Config) {
		c.RateLimit.Enabled = false
	}
}

// WithListenAddr sets the HTTP listen address.
func WithListenAddr(addr string) Option {
	return func(c *Config) {
		c.Server.Addr = addr
	}
}

// WithTrustProxyHeaders makes the caller key come from proxy headers.
func WithTrustProxyHeaders(enabled bool) Option {
	return func(c *Config) {
		c.Server.TrustProxyHeaders = enabled
	}
}

// WithStaticDir serves a single-page application from dir.
func WithStaticDir(dir string) Option {
	return func(c *Config) {
		c.Server.StaticDir = dir
	}
}

// WithTracing configures distributed tracing.
func WithTracing(serviceName string) Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = true
		c.Monitoring.Tracing.ServiceName = serviceName
	}
}

// WithoutTracing disables distributed tracing.
func WithoutTracing() Option {
	return func(c *Config) {
		c.Monitoring.Tracing.Enabled = false
	}
}

// WithMetrics configures metrics collection.
func WithMetrics(namespace string) Option {
	return func(c *Config) {
		c.Monitoring.Metrics.Enabled = true
		c.Monitoring.Metrics.Namespace = namespace
	}
}

// WithoutMetrics disables metrics collection.
func WithoutMetrics() Option {
	return func(c *Config) {
		c.Monitoring.Metrics.Enabled = false
	}
}

// WithLogging configures logging.
func WithLogging(level, format, output string) Option {
	return func(c *Config) {
		c.Monitoring.Logging.Level = level
		c.Monitoring.Logging.Format = format
		c.Monitoring.Logging.Output = output
	}
}
