package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-mindwell/internal/httpc"
)

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"   // Neutral voice
	VoiceEcho    = "echo"    // Male voice
	VoiceFable   = "fable"   // British accent
	VoiceOnyx    = "onyx"    // Deep male voice
	VoiceNova    = "nova"    // Female voice
	VoiceShimmer = "shimmer" // Soft female voice
)

// OpenAI model options
const (
	ModelTTS1   = "tts-1"    // Standard quality, faster
	ModelTTS1HD = "tts-1-hd" // Higher quality, slower
)

// OpenAI implements Provider for OpenAI TTS.
type OpenAI struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.VoiceID = VoiceShimmer
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = VoiceShimmer
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openAIBaseURL
	}

	return &OpenAI{
		config:  cfg,
		client:  httpc.NewClient(cfg.Timeout),
		logger:  cfg.Logger.With("component", "tts.openai"),
		baseURL: baseURL,
	}, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string { return ProviderOpenAI }

// Synthesize converts text to MP3 audio.
func (o *OpenAI) Synthesize(ctx context.Context, req Request) (*AudioResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	voice := req.Voice
	if voice == "" {
		voice = o.config.VoiceID
	}

	body, err := json.Marshal(map[string]any{
		"model":           o.config.ModelID,
		"voice":           voice,
		"input":           req.Text,
		"response_format": "mp3",
	})
	if err != nil {
		return nil, WrapError(ProviderOpenAI, fmt.Errorf("marshal payload: %w", err))
	}

	resp, err := httpc.DoWithRetry(ctx, o.client, o.retry(),
		httpc.JSONRequest(http.MethodPost, o.baseURL+"/audio/speech", body, o.header()))
	if err != nil {
		return nil, WrapError(ProviderOpenAI, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(ProviderOpenAI, resp, openAIErrorMessage)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ProviderOpenAI, fmt.Errorf("read response: %w", err))
	}

	latency := time.Since(start).Milliseconds()
	o.logger.Debug("synthesized audio",
		"chars", len(req.Text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", voice,
	)

	return &AudioResult{
		Audio:       audio,
		Format:      AudioFormat{Encoding: EncodingMP3, SampleRate: 44100, Channels: 1},
		ContentType: ContentType(EncodingMP3),
		Provider:    ProviderOpenAI,
		CharCount:   len(req.Text),
		LatencyMs:   latency,
	}, nil
}

// Health checks API connectivity.
func (o *OpenAI) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/models", nil)
	if err != nil {
		return WrapError(ProviderOpenAI, err)
	}
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return WrapError(ProviderOpenAI, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(ProviderOpenAI, resp, openAIErrorMessage)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	o.client.CloseIdleConnections()
	return nil
}

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.config.VoiceID
}

func (o *OpenAI) header() http.Header {
	return http.Header{"Authorization": []string{"Bearer " + o.config.APIKey}}
}

func (o *OpenAI) retry() httpc.Retry {
	return httpc.Retry{
		MaxRetries: o.config.MaxRetries,
		Delay:      o.config.RetryDelay,
		Logger:     o.logger,
	}
}

func openAIErrorMessage(body []byte) (string, string) {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &errResp) != nil {
		return "", ""
	}
	return errResp.Error.Message, errResp.Error.Code
}

// Verify OpenAI implements Provider at compile time.
var _ Provider = (*OpenAI)(nil)
