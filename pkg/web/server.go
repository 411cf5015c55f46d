// Package web is the Fiber application for mindwell-server: the realtime
// relay, the operator event stream and the REST proxies.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-mindwell/pkg/hub"
	"github.com/teslashibe/go-mindwell/pkg/hubspot"
	"github.com/teslashibe/go-mindwell/pkg/inference"
	"github.com/teslashibe/go-mindwell/pkg/insight"
	"github.com/teslashibe/go-mindwell/pkg/ratelimit"
	"github.com/teslashibe/go-mindwell/pkg/relay"
	"github.com/teslashibe/go-mindwell/pkg/tts"
)

// DefaultBodyLimit bounds request bodies; transcription uploads dominate.
const DefaultBodyLimit = 25 << 20

// ContactUpserter stores signups in a CRM.
type ContactUpserter interface {
	UpsertContact(ctx context.Context, c hubspot.Contact) (id string, created bool, err error)
}

// Server is the HTTP server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	version     string
	debug       bool
	corsOrigins string
	bodyLimit   int

	relay    *relay.Relay
	events   *hub.Hub
	chat     inference.Provider
	insights *insight.Generator
	contacts ContactUpserter
	limiter  ratelimit.Limiter

	// speech holds providers by name; speechChain tries them in order.
	speech      map[string]tts.Provider
	speechChain tts.Provider
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithDebug enables per-request logging.
func WithDebug(debug bool) Option {
	return func(s *Server) { s.debug = debug }
}

// WithCORSOrigins sets the comma separated list of allowed origins.
func WithCORSOrigins(origins string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithBodyLimit sets the maximum request body size in bytes.
func WithBodyLimit(n int) Option {
	return func(s *Server) { s.bodyLimit = n }
}

// WithRelay mounts the realtime relay on /realtime.
func WithRelay(r *relay.Relay) Option {
	return func(s *Server) { s.relay = r }
}

// WithEventHub mounts the operator event stream on /ws/events.
func WithEventHub(h *hub.Hub) Option {
	return func(s *Server) { s.events = h }
}

// WithInference enables /api/chat and /api/transcribe.
func WithInference(p inference.Provider) Option {
	return func(s *Server) { s.chat = p }
}

// WithInsights enables /api/insights.
func WithInsights(g *insight.Generator) Option {
	return func(s *Server) { s.insights = g }
}

// WithSpeech enables /api/tts. Providers are tried in the given order when
// the request does not name one.
func WithSpeech(providers ...tts.Provider) Option {
	return func(s *Server) {
		s.speech = make(map[string]tts.Provider, len(providers))
		for _, p := range providers {
			s.speech[p.Name()] = p
		}
		if chain, err := tts.NewChain(providers...); err == nil {
			s.speechChain = chain
		}
	}
}

// WithContacts enables /api/contacts.
func WithContacts(c ContactUpserter) Option {
	return func(s *Server) { s.contacts = c }
}

// WithRateLimiter limits /api requests per client IP.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// NewServer builds the application. Features whose dependency was not
// provided answer 503.
func NewServer(addr string, opts ...Option) *Server {
	s := &Server{
		addr:        addr,
		logger:      slog.Default(),
		version:     "dev",
		corsOrigins: "*",
		bodyLimit:   DefaultBodyLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "web")

	app := fiber.New(fiber.Config{
		AppName:               "mindwell",
		DisableStartupMessage: true,
		BodyLimit:             s.bodyLimit,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: s.corsOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if s.debug {
		app.Use(logger.New())
	}

	app.Get("/health", s.handleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if s.relay != nil {
		s.relay.Register(app, "/realtime")
	}

	if s.events != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/events", s.events.Handler())
	}

	api := app.Group("/api", s.instrument, s.rateLimit)
	api.Post("/chat", s.handleChat)
	api.Post("/insights", s.handleInsights)
	api.Post("/transcribe", s.handleTranscribe)
	api.Post("/tts", s.handleTTS)
	api.Post("/contacts", s.handleContacts)

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens on the configured address and blocks.
func (s *Server) Start() error {
	fmt.Printf("🌐 mindwell listening on %s\n", displayAddr(s.addr))
	return s.app.Listen(s.addr)
}

// Serve accepts connections on ln and blocks.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for handlers until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
