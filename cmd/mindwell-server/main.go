// mindwell-server: realtime voice relay and REST proxies for the Mindwell
// web app. Browsers talk to this service; vendor credentials never leave it.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/teslashibe/go-mindwell/internal/config"
	"github.com/teslashibe/go-mindwell/internal/log"
	"github.com/teslashibe/go-mindwell/pkg/hub"
	"github.com/teslashibe/go-mindwell/pkg/hubspot"
	"github.com/teslashibe/go-mindwell/pkg/inference"
	"github.com/teslashibe/go-mindwell/pkg/insight"
	"github.com/teslashibe/go-mindwell/pkg/ratelimit"
	"github.com/teslashibe/go-mindwell/pkg/relay"
	"github.com/teslashibe/go-mindwell/pkg/tts"
	"github.com/teslashibe/go-mindwell/pkg/web"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("mindwell-server", flag.ContinueOnError)
	port := fs.IntP("port", "p", 0, "HTTP port (overrides PORT)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	debug := fs.Bool("debug", false, "enable request logging and debug output")
	envFile := fs.String("env-file", ".env", "dotenv file to load before reading the environment")
	showVersion := fs.BoolP("version", "v", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Println(version)
		return nil
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if *debug {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.Init(cfg.LogLevel, cfg.LogFormat)

	fmt.Println()
	fmt.Println("🧠 Mindwell server " + version)
	fmt.Println()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := hub.New("events", logger)
	go events.Run(ctx)

	rl := relay.New(
		relay.WithAPIKey(cfg.OpenAIAPIKey),
		relay.WithUpstreamURL(cfg.RealtimeURL),
		relay.WithModel(cfg.RealtimeModel),
		relay.WithIdleTimeout(cfg.RelayIdleTimeout),
		relay.WithMaxMessageSize(cfg.RelayMaxMessageBytes),
		relay.WithLogger(logger),
		relay.WithEventHandler(func(e relay.Event) {
			if err := events.BroadcastJSON(e); err != nil {
				logger.Warn("event broadcast failed", "error", err)
			}
		}),
	)
	if cfg.OpenAIAPIKey == "" {
		fmt.Println("⚠️  OPENAI_API_KEY not set: /realtime, /api/chat, /api/insights and /api/transcribe are disabled")
	}

	opts := []web.Option{
		web.WithLogger(logger),
		web.WithVersion(version),
		web.WithDebug(cfg.Debug),
		web.WithCORSOrigins(cfg.CORSAllowOrigins),
		web.WithRelay(rl),
		web.WithEventHub(events),
	}

	if cfg.OpenAIAPIKey != "" {
		client, err := inference.NewClient(
			inference.WithBaseURL(cfg.OpenAIBaseURL),
			inference.WithAPIKey(cfg.OpenAIAPIKey),
			inference.WithModel(cfg.ChatModel),
			inference.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer client.Close()
		opts = append(opts,
			web.WithInference(client),
			web.WithInsights(insight.New(client, insight.WithLogger(logger))),
		)
	}

	speech := speechProviders(ctx, cfg, logger)
	for _, p := range speech {
		defer p.Close()
	}
	if len(speech) > 0 {
		opts = append(opts, web.WithSpeech(speech...))
	}

	if cfg.HubSpotAccessToken != "" {
		crm, err := hubspot.NewClient(
			hubspot.WithAccessToken(cfg.HubSpotAccessToken),
			hubspot.WithBaseURL(cfg.HubSpotBaseURL),
			hubspot.WithLogger(logger),
		)
		if err != nil {
			return err
		}
		defer crm.Close()
		opts = append(opts, web.WithContacts(crm))
	}

	limiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer limiter.Close()
	opts = append(opts, web.WithRateLimiter(limiter))

	server := web.NewServer(cfg.Addr(), opts...)

	errCh := make(chan error, 1)
	go func() {
		fmt.Printf("   Realtime: ws://localhost:%d/realtime\n", cfg.Port)
		fmt.Printf("   Events:   ws://localhost:%d/ws/events\n", cfg.Port)
		fmt.Printf("   Health:   http://localhost:%d/health\n", cfg.Port)
		fmt.Println()
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	fmt.Println("\n👋 Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
	fmt.Println("✅ Goodbye!")
	return nil
}

// speechProviders returns the configured TTS providers in fallback order:
// ElevenLabs, Google, OpenAI.
func speechProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) []tts.Provider {
	var providers []tts.Provider

	if cfg.ElevenLabsAPIKey != "" {
		opts := []tts.Option{tts.WithAPIKey(cfg.ElevenLabsAPIKey), tts.WithLogger(logger)}
		if cfg.ElevenLabsVoiceID != "" {
			opts = append(opts, tts.WithVoice(cfg.ElevenLabsVoiceID))
		}
		p, err := tts.NewElevenLabs(opts...)
		if err != nil {
			logger.Warn("elevenlabs disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	if cfg.GoogleTTSCredentialsFile != "" {
		opts := []tts.Option{
			tts.WithCredentialsFile(cfg.GoogleTTSCredentialsFile),
			tts.WithLogger(logger),
		}
		if cfg.GoogleTTSVoice != "" {
			opts = append(opts, tts.WithVoice(cfg.GoogleTTSVoice))
		}
		p, err := tts.NewGoogle(ctx, opts...)
		if err != nil {
			logger.Warn("google tts disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	if cfg.OpenAIAPIKey != "" {
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.OpenAIAPIKey),
			tts.WithBaseURL(cfg.OpenAIBaseURL),
			tts.WithLogger(logger),
		)
		if err != nil {
			logger.Warn("openai tts disabled", "error", err)
		} else {
			providers = append(providers, p)
		}
	}

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	logger.Info("tts providers", "order", names)
	return providers
}

// newLimiter uses Redis when REDIS_URL is set so replicas share a budget.
func newLimiter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (ratelimit.Limiter, error) {
	limit := ratelimit.PerMinute(cfg.RateLimitPerMinute)
	if cfg.RedisURL == "" {
		return ratelimit.NewMemory(limit), nil
	}
	r, err := ratelimit.NewRedis(ctx, cfg.RedisURL, limit, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("rate limiting via redis", "per_minute", cfg.RateLimitPerMinute)
	return r, nil
}
