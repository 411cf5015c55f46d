// Package tts provides a unified interface for text-to-speech providers.
//
// The package supports ElevenLabs (custom and preset voices), Google Cloud
// Text-to-Speech and OpenAI (built-in voices). All providers implement the
// Provider interface, so the HTTP layer can pick one by name or fall back
// through a Chain without changing caller code.
//
// Example usage:
//
//	provider, _ := tts.NewElevenLabs(
//	    tts.WithAPIKey(os.Getenv("ELEVENLABS_API_KEY")),
//	    tts.WithVoice("calm"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, tts.Request{Text: "Take a slow breath."})
//	// result.Audio holds MP3 bytes, result.ContentType is audio/mpeg
package tts

import (
	"context"
	"strings"
)

// Provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderElevenLabs = "elevenlabs"
	ProviderGoogle     = "google"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Name identifies the provider in logs, errors and API selection.
	Name() string

	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, req Request) (*AudioResult, error)

	// Health checks provider connectivity and credential validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Request is one synthesis call.
type Request struct {
	Text string

	// Voice overrides the provider's configured voice when set.
	Voice string
}

// Validate rejects requests no provider can serve.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return ErrEmptyText
	}
	return nil
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// ContentType is the MIME type to serve Audio with.
	ContentType string

	// Provider names the provider that produced the audio.
	Provider string

	CharCount int
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Encoding represents audio encoding types.
// Values match ElevenLabs output_format names.
type Encoding string

const (
	EncodingMP3   Encoding = "mp3_44100_128" // MP3 128kbps
	EncodingPCM16 Encoding = "pcm_16000"
	EncodingPCM24 Encoding = "pcm_24000" // matches the realtime API
	EncodingOpus  Encoding = "opus"
	EncodingULaw  Encoding = "ulaw_8000" // telephony
)

// VoiceSettings controls voice characteristics for providers that support it.
type VoiceSettings struct {
	// Stability controls voice consistency (0.0-1.0).
	// Lower values = more expressive/variable, higher = more consistent.
	Stability float64

	// SimilarityBoost controls how closely the voice matches the original (0.0-1.0).
	SimilarityBoost float64

	// Style controls style exaggeration (0.0-1.0).
	Style float64

	SpeakerBoost bool
}

// DefaultVoiceSettings returns calm, consistent settings suited to guided
// wellness content.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.6,
		SimilarityBoost: 0.75,
		Style:           0.0,
		SpeakerBoost:    true,
	}
}

// SampleRateFromEncoding extracts the sample rate from an encoding type.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	case EncodingPCM24:
		return 24000
	case EncodingMP3:
		return 44100
	case EncodingOpus:
		return 48000
	case EncodingULaw:
		return 8000
	default:
		return 24000
	}
}

// ContentType returns the MIME type for an encoding.
func ContentType(enc Encoding) string {
	switch enc {
	case EncodingMP3:
		return "audio/mpeg"
	case EncodingPCM16, EncodingPCM24:
		return "audio/pcm"
	case EncodingOpus:
		return "audio/ogg"
	case EncodingULaw:
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}
