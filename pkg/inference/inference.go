// Package inference provides a unified interface for LLM chat and speech
// transcription against OpenAI-compatible APIs.
//
// The REST proxies use it for free-form chat, assessment insights and
// audio transcription. Any API that implements the OpenAI wire format
// (OpenAI, Ollama, vLLM, Together, Groq) can serve as a backend.
//
// Example usage:
//
//	client, _ := inference.NewClient(
//	    inference.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    inference.WithModel("gpt-4o-mini"),
//	)
//	defer client.Close()
//
//	resp, _ := client.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewUserMessage("I have trouble sleeping."),
//	    },
//	})
package inference

import (
	"context"
	"io"
)

// Provider is the unified inference interface.
// All implementations must satisfy this interface.
type Provider interface {
	// Chat generates a response from a sequence of messages.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Transcribe converts recorded speech to text.
	Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error)

	// Health checks provider connectivity and API key validity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest for chat completions.
type ChatRequest struct {
	// Messages is the conversation history.
	Messages []Message

	// Model overrides the default model.
	Model string

	// MaxTokens limits the response length.
	MaxTokens int

	// Temperature controls randomness (0.0-2.0).
	Temperature float64
}

// Validate checks the request before it is sent.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for _, m := range r.Messages {
		if !m.Role.Valid() {
			return ErrInvalidRole
		}
	}
	if r.Temperature < 0 || r.Temperature > 2 {
		return ErrInvalidTemperature
	}
	return nil
}

// ChatResponse from chat completion.
type ChatResponse struct {
	// Message is the assistant's response.
	Message Message

	// FinishReason indicates why generation stopped.
	FinishReason string

	Usage Usage

	// Model used for generation.
	Model string

	LatencyMs int64
}

// TranscribeRequest carries one audio file.
type TranscribeRequest struct {
	// Audio is the encoded audio (webm, mp3, wav, m4a, ...).
	Audio io.Reader

	// Filename carries the extension the API uses to detect the format.
	Filename string

	// Language is an optional ISO-639-1 hint.
	Language string

	// Model overrides the default transcription model.
	Model string
}

// TranscribeResponse holds the recognized text.
type TranscribeResponse struct {
	Text      string
	Model     string
	LatencyMs int64
}

// Usage tracks token consumption for billing and limits.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
