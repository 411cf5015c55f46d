package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/texttospeech/v1"

	"github.com/teslashibe/go-mindwell/internal/httpc"
)

// DefaultGoogleVoice is a calm US English neural voice.
const DefaultGoogleVoice = "en-US-Neural2-F"

// Google implements Provider for Google Cloud Text-to-Speech.
type Google struct {
	config  *Config
	service *texttospeech.Service
	logger  *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider.
//
// Credentials come from WithCredentialsFile, or from Application Default
// Credentials when no file is given. A provider built WithBaseURL and no
// credentials file talks to that endpoint unauthenticated, which is how
// tests point it at a local server.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.VoiceID = DefaultGoogleVoice
	cfg.Apply(opts...)
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultGoogleVoice
	}

	clientOpts := []option.ClientOption{
		option.WithHTTPClient(httpc.NewClient(cfg.Timeout)),
	}

	switch {
	case cfg.CredentialsFile != "":
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, WrapError(ProviderGoogle, fmt.Errorf("read credentials: %w", err))
		}
		creds, err := google.CredentialsFromJSON(ctx, data, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(ProviderGoogle, fmt.Errorf("parse credentials: %w", err))
		}
		// An authenticated transport replaces the plain client.
		clientOpts = []option.ClientOption{option.WithCredentials(creds)}
	case cfg.BaseURL != "":
		clientOpts = append(clientOpts, option.WithoutAuthentication())
	default:
		creds, err := google.FindDefaultCredentials(ctx, texttospeech.CloudPlatformScope)
		if err != nil {
			return nil, WrapError(ProviderGoogle, fmt.Errorf("%w: %v", ErrNoCredentials, err))
		}
		clientOpts = []option.ClientOption{option.WithCredentials(creds)}
	}

	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	svc, err := texttospeech.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(ProviderGoogle, fmt.Errorf("create service: %w", err))
	}

	return &Google{
		config:  cfg,
		service: svc,
		logger:  cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Name returns "google".
func (g *Google) Name() string { return ProviderGoogle }

// Synthesize converts text to MP3 audio.
func (g *Google) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	voice := req.Voice
	if voice == "" {
		voice = g.config.VoiceID
	}

	call := g.service.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: req.Text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: g.config.LanguageCode,
			Name:         voice,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	})

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, g.wrap(err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, WrapError(ProviderGoogle, fmt.Errorf("decode audio: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	g.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", voice,
	)

	return &AudioResult{
		Audio:       audio,
		Format:      AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1},
		ContentType: ContentType(EncodingMP3),
		Provider:    ProviderGoogle,
		CharCount:   len(req.Text),
		LatencyMs:   latency,
	}, nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	_, err := g.service.Voices.List().LanguageCode(g.config.LanguageCode).Context(ctx).Do()
	if err != nil {
		return g.wrap(err)
	}
	return nil
}

// Close releases resources.
func (g *Google) Close() error {
	return nil
}

// VoiceID returns the configured voice name.
func (g *Google) VoiceID() string {
	return g.config.VoiceID
}

// wrap converts googleapi errors into APIError so callers see one shape.
func (g *Google) wrap(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &APIError{
			StatusCode: gerr.Code,
			Message:    gerr.Message,
			Provider:   ProviderGoogle,
		}
	}
	return WrapError(ProviderGoogle, err)
}

// Verify Google implements Provider at compile time.
var _ Provider = (*Google)(nil)
