package hubspot

import (
	"log/slog"
	"time"
)

// DefaultBaseURL is the public HubSpot API host.
const DefaultBaseURL = "https://api.hubapi.com"

// Config holds HubSpot client configuration.
type Config struct {
	// AccessToken is a private app token sent as a bearer credential.
	AccessToken string

	// BaseURL overrides the API host, mainly for tests.
	BaseURL string

	// Timeout for each HTTP request.
	Timeout time.Duration

	// MaxRetries for 429 and 5xx responses.
	MaxRetries int

	// RetryDelay is the first backoff step.
	RetryDelay time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithAccessToken sets the private app token.
func WithAccessToken(token string) Option {
	return func(c *Config) { c.AccessToken = token }
}

// WithBaseURL sets the API host.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithRetry sets retry behavior.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = maxRetries
		c.RetryDelay = delay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    DefaultBaseURL,
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		RetryDelay: 250 * time.Millisecond,
		Logger:     slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.AccessToken == "" {
		return ErrNoAccessToken
	}
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	return nil
}
