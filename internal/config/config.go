// Package config loads go-mindwell configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultPort            = 8080
	DefaultLogLevel        = "info"
	DefaultOpenAIBaseURL   = "https://api.openai.com/v1"
	DefaultRealtimeURL     = "wss://api.openai.com/v1/realtime"
	DefaultRealtimeModel   = "gpt-4o-realtime-preview-2024-12-17"
	DefaultChatModel       = "gpt-4o-mini"
	DefaultHubSpotBaseURL  = "https://api.hubapi.com"
	DefaultRateLimit       = 60
	DefaultIdleTimeout     = 10 * time.Minute
	DefaultMaxMessageBytes = 16 << 20
	DefaultCORSOrigins     = "*"
)

// Config is the full server configuration.
type Config struct {
	Port      int
	LogLevel  string
	LogFormat string
	Debug     bool

	// OpenAI
	OpenAIAPIKey  string
	OpenAIBaseURL string
	RealtimeURL   string
	RealtimeModel string
	ChatModel     string

	// ElevenLabs
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	// Google Cloud Text-to-Speech
	GoogleTTSCredentialsFile string
	GoogleTTSVoice           string

	// HubSpot
	HubSpotAccessToken string
	HubSpotBaseURL     string

	// Rate limiting; empty RedisURL keeps counters in memory.
	RedisURL           string
	RateLimitPerMinute int

	// Relay bounds
	RelayIdleTimeout     time.Duration
	RelayMaxMessageBytes int64

	CORSAllowOrigins string
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:           Get("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          os.Getenv("LOG_FORMAT"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      Get("OPENAI_BASE_URL", DefaultOpenAIBaseURL),
		RealtimeURL:        Get("OPENAI_REALTIME_URL", DefaultRealtimeURL),
		RealtimeModel:      Get("OPENAI_REALTIME_MODEL", DefaultRealtimeModel),
		ChatModel:          Get("OPENAI_CHAT_MODEL", DefaultChatModel),
		ElevenLabsAPIKey:   os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:  os.Getenv("ELEVENLABS_VOICE_ID"),
		GoogleTTSVoice:     os.Getenv("GOOGLE_TTS_VOICE"),
		HubSpotAccessToken: os.Getenv("HUBSPOT_ACCESS_TOKEN"),
		HubSpotBaseURL:     Get("HUBSPOT_BASE_URL", DefaultHubSpotBaseURL),
		RedisURL:           os.Getenv("REDIS_URL"),
		CORSAllowOrigins:   Get("CORS_ALLOW_ORIGINS", DefaultCORSOrigins),

		GoogleTTSCredentialsFile: os.Getenv("GOOGLE_TTS_CREDENTIALS_FILE"),
	}

	var err error
	if cfg.Port, err = getInt("PORT", DefaultPort); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getInt("RATE_LIMIT_PER_MINUTE", DefaultRateLimit); err != nil {
		return nil, err
	}
	if cfg.RelayIdleTimeout, err = getDuration("RELAY_IDLE_TIMEOUT", DefaultIdleTimeout); err != nil {
		return nil, err
	}
	maxBytes, err := getInt("RELAY_MAX_MESSAGE_BYTES", DefaultMaxMessageBytes)
	if err != nil {
		return nil, err
	}
	cfg.RelayMaxMessageBytes = int64(maxBytes)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges. Vendor credentials are optional here: each
// feature reports its own missing credential at request time.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: RATE_LIMIT_PER_MINUTE must be >= 0, got %d", c.RateLimitPerMinute)
	}
	if c.RelayIdleTimeout < 0 {
		return fmt.Errorf("config: RELAY_IDLE_TIMEOUT must be >= 0, got %s", c.RelayIdleTimeout)
	}
	if c.RelayMaxMessageBytes <= 0 {
		return fmt.Errorf("config: RELAY_MAX_MESSAGE_BYTES must be > 0, got %d", c.RelayMaxMessageBytes)
	}
	return nil
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Get returns the environment variable value or def if empty.
func Get(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
