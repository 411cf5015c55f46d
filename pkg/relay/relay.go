// Package relay bridges a browser websocket to the OpenAI Realtime API.
//
// Each inbound connection gets its own upstream connection authenticated with
// a server-held API key. Frames are forwarded verbatim in both directions,
// text and binary alike, in arrival order per direction. The relay never
// inspects payloads and never reconnects: when either leg ends, the other is
// closed with a matching code.
//
// Example usage:
//
//	r := relay.New(
//	    relay.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    relay.WithModel("gpt-4o-realtime-preview-2024-12-17"),
//	)
//	r.Register(app, "/realtime")
package relay

import (
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	gws "github.com/gorilla/websocket"

	"github.com/teslashibe/go-mindwell/internal/metrics"
)

const (
	DefaultUpstreamURL      = "wss://api.openai.com/v1/realtime"
	DefaultModel            = "gpt-4o-realtime-preview-2024-12-17"
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultIdleTimeout      = 10 * time.Minute
	DefaultMaxMessageSize   = 16 << 20
)

// HTTP rejection bodies.
const (
	BodyExpectedUpgrade   = "Expected WebSocket upgrade"
	BodyMissingCredential = "Missing OpenAI API key"
)

// Config holds relay configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// APIKey authenticates the upstream leg. Empty rejects every connection.
	APIKey string

	// UpstreamURL is the realtime endpoint; Model is added as ?model=.
	UpstreamURL string
	Model       string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration

	// IdleTimeout closes both legs after no frame in either direction.
	// Zero disables the watchdog.
	IdleTimeout time.Duration

	// MaxMessageSize is the read limit applied to both legs.
	MaxMessageSize int64

	Logger  *slog.Logger
	OnEvent EventHandler
}

// Option is a functional option for configuring the relay.
type Option func(*Config)

// WithAPIKey sets the upstream credential.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithUpstreamURL overrides the realtime endpoint.
func WithUpstreamURL(u string) Option {
	return func(c *Config) { c.UpstreamURL = u }
}

// WithModel sets the realtime model.
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithHandshakeTimeout bounds the upstream dial.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) { c.HandshakeTimeout = d }
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) { c.WriteTimeout = d }
}

// WithIdleTimeout sets the idle watchdog period.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Config) { c.IdleTimeout = d }
}

// WithMaxMessageSize sets the per-frame read limit.
func WithMaxMessageSize(n int64) Option {
	return func(c *Config) { c.MaxMessageSize = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithEventHandler registers a session event callback.
func WithEventHandler(h EventHandler) Option {
	return func(c *Config) { c.OnEvent = h }
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() *Config {
	return &Config{
		UpstreamURL:      DefaultUpstreamURL,
		Model:            DefaultModel,
		HandshakeTimeout: DefaultHandshakeTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		IdleTimeout:      DefaultIdleTimeout,
		MaxMessageSize:   DefaultMaxMessageSize,
		Logger:           slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Relay accepts client websockets and pairs each with an upstream socket.
// Sessions share no state beyond the counters below.
type Relay struct {
	config *Config
	dialer *gws.Dialer
	logger *slog.Logger

	active        atomic.Int64
	total         atomic.Uint64
	upstreamDials atomic.Uint64
}

// New creates a relay.
func New(opts ...Option) *Relay {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Relay{
		config: cfg,
		dialer: &gws.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger: cfg.Logger.With("component", "relay"),
	}
}

// Register installs the relay on router at path.
func (r *Relay) Register(router fiber.Router, path string) {
	router.Get(path, r.Gate, websocket.New(r.Serve, websocket.Config{
		HandshakeTimeout: r.config.HandshakeTimeout,
	}))
}

// Gate rejects requests that must never reach the upgrade: non-websocket
// requests and requests arriving while no upstream credential is configured.
func (r *Relay) Gate(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		metrics.RelayRejectedTotal.WithLabelValues("no_upgrade").Inc()
		return c.Status(fiber.StatusBadRequest).SendString(BodyExpectedUpgrade)
	}
	if r.config.APIKey == "" {
		metrics.RelayRejectedTotal.WithLabelValues("missing_credential").Inc()
		r.logger.Error("rejecting relay connection", "reason", "missing api key", "ip", c.IP())
		return c.Status(fiber.StatusInternalServerError).SendString(BodyMissingCredential)
	}
	return c.Next()
}

// Serve runs one relay session on an upgraded client connection and returns
// when both legs are closed.
func (r *Relay) Serve(conn *websocket.Conn) {
	newSession(r, conn).run()
}

// Stats is a snapshot of relay counters.
type Stats struct {
	ActiveSessions int64  `json:"active_sessions"`
	TotalSessions  uint64 `json:"total_sessions"`
	UpstreamDials  uint64 `json:"upstream_dials"`
}

// Stats returns the current counters.
func (r *Relay) Stats() Stats {
	return Stats{
		ActiveSessions: r.active.Load(),
		TotalSessions:  r.total.Load(),
		UpstreamDials:  r.upstreamDials.Load(),
	}
}

// ActiveSessions returns the number of open sessions.
func (r *Relay) ActiveSessions() int64 {
	return r.active.Load()
}

// upstreamURL returns UpstreamURL with the model query parameter set.
func (r *Relay) upstreamURL() (string, error) {
	u, err := url.Parse(r.config.UpstreamURL)
	if err != nil {
		return "", err
	}
	if r.config.Model != "" {
		q := u.Query()
		q.Set("model", r.config.Model)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// upstreamHeader returns the authentication headers for the upstream dial.
func (r *Relay) upstreamHeader() http.Header {
	return http.Header{
		"Authorization": []string{"Bearer " + r.config.APIKey},
		"OpenAI-Beta":   []string{"realtime=v1"},
	}
}

func (r *Relay) emit(e Event) {
	if r.config.OnEvent != nil {
		r.config.OnEvent(e)
	}
}
