package inference

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected /chat/completions, got %s", r.URL.Path)
		}
		if r.Method != "POST" {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Expected Bearer test-key, got %s", auth)
		}

		var body struct {
			Model     string    `json:"model"`
			Messages  []Message `json:"messages"`
			MaxTokens int       `json:"max_tokens"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "gpt-4o-mini" {
			t.Errorf("Expected model gpt-4o-mini, got %s", body.Model)
		}
		if len(body.Messages) != 2 || body.Messages[0].Role != RoleSystem {
			t.Errorf("Unexpected messages: %+v", body.Messages)
		}
		if body.MaxTokens != 1024 {
			t.Errorf("Expected default max_tokens 1024, got %d", body.MaxTokens)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "test-id",
			"model": "gpt-4o-mini",
			"choices": [{"message": {"role": "assistant", "content": "Try a short walk."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(
		WithBaseURL(server.URL),
		WithAPIKey("test-key"),
		WithModel("gpt-4o-mini"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	resp, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{
			NewSystemMessage("You are a supportive coach."),
			NewUserMessage("I feel restless."),
		},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}

	if resp.Message.Content != "Try a short walk." {
		t.Errorf("Unexpected content: %s", resp.Message.Content)
	}
	if resp.Message.Role != RoleAssistant {
		t.Errorf("Expected assistant role, got %s", resp.Message.Role)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("Expected finish_reason 'stop', got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestClientChatValidation(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	tests := []struct {
		name string
		req  *ChatRequest
		want error
	}{
		{"no messages", &ChatRequest{}, ErrNoMessages},
		{"bad role", &ChatRequest{Messages: []Message{{Role: "tool", Content: "x"}}}, ErrInvalidRole},
		{"bad temperature", &ChatRequest{Messages: []Message{NewUserMessage("x")}, Temperature: 3}, ErrInvalidTemperature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Chat(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
			if !IsInvalidRequest(err) {
				t.Errorf("Expected IsInvalidRequest for %v", err)
			}
		})
	}
	if calls.Load() != 0 {
		t.Errorf("Invalid requests reached the API %d times", calls.Load())
	}
}

func TestClientChatRetry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"model":"m","choices":[{"message":{"content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithRetry(3, time.Millisecond))
	defer client.Close()

	resp, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Message.Content != "ok" {
		t.Errorf("Unexpected content: %s", resp.Message.Content)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 calls, got %d", calls.Load())
	}
}

func TestClientChatNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"model":"m","choices":[]}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	_, err := client.Chat(context.Background(), &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("Expected ErrEmptyResponse, got %v", err)
	}
}

func TestClientTranscribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Expected /audio/transcriptions, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("Expected whisper-1, got %s", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("Expected language en, got %s", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "RIFFfakewav" || header.Filename != "note.wav" {
			t.Errorf("Unexpected upload %q (%s)", data, header.Filename)
		}
		w.Write([]byte(`{"text":"  I slept badly last night. "}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithAPIKey("test-key"))
	defer client.Close()

	resp, err := client.Transcribe(context.Background(), &TranscribeRequest{
		Audio:    strings.NewReader("RIFFfakewav"),
		Filename: "note.wav",
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if resp.Text != "I slept badly last night." {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
}

func TestClientTranscribeRetryResendsAudio(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("attempt %d: missing file: %v", calls.Load()+1, err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)
		file.Close()
		if string(data) != "audio" {
			t.Errorf("attempt %d: body %q", calls.Load()+1, data)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithRetry(1, time.Millisecond))
	defer client.Close()

	if _, err := client.Transcribe(context.Background(), &TranscribeRequest{Audio: strings.NewReader("audio")}); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
}

func TestClientTranscribeEmpty(t *testing.T) {
	client, _ := NewClient()
	defer client.Close()

	for _, req := range []*TranscribeRequest{nil, {}, {Audio: strings.NewReader("")}} {
		if _, err := client.Transcribe(context.Background(), req); !errors.Is(err, ErrNoAudio) {
			t.Errorf("Expected ErrNoAudio, got %v", err)
		}
	}
}

func TestClientHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("Expected /models, got %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL))
	defer client.Close()

	if err := client.Health(context.Background()); err != nil {
		t.Errorf("Health check failed: %v", err)
	}
}

func TestClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "Invalid API key",
				"code":    "invalid_api_key",
			},
		})
	}))
	defer server.Close()

	client, _ := NewClient(WithBaseURL(server.URL), WithAPIKey("bad-key"))
	defer client.Close()

	_, err := client.Chat(context.Background(), &ChatRequest{
		Messages: []Message{NewUserMessage("test")},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected APIError, got %T", err)
	}
	if apiErr.StatusCode != 401 || !apiErr.IsUnauthorized() {
		t.Errorf("Expected 401 unauthorized, got %d", apiErr.StatusCode)
	}
	if apiErr.Code != "invalid_api_key" {
		t.Errorf("Expected code invalid_api_key, got %s", apiErr.Code)
	}
	if apiErr.IsRetryable() {
		t.Error("401 should not be retryable")
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(WithBaseURL("")); !errors.Is(err, ErrNoBaseURL) {
		t.Errorf("Expected ErrNoBaseURL, got %v", err)
	}
	if _, err := NewClient(WithModel("")); !errors.Is(err, ErrNoModel) {
		t.Errorf("Expected ErrNoModel, got %v", err)
	}

	// Local providers like Ollama need no API key
	client, err := NewClient(WithBaseURL("http://localhost:11434/v1"))
	if err != nil {
		t.Fatalf("Should allow creation without API key: %v", err)
	}
	client.Close()
}

func TestMockProvider(t *testing.T) {
	mock := NewMock()
	ctx := context.Background()

	resp, err := mock.Chat(ctx, &ChatRequest{Messages: []Message{NewUserMessage("hi")}})
	if err != nil || resp.Message.Content != "Mock response" {
		t.Fatalf("Chat = %+v, %v", resp, err)
	}
	if _, err := mock.Transcribe(ctx, &TranscribeRequest{Audio: strings.NewReader("x")}); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if mock.CallCount("Chat") != 1 || mock.CallCount("Transcribe") != 1 {
		t.Errorf("Unexpected calls: %+v", mock.Calls())
	}
	if last := mock.LastCall(); last == nil || last.Method != "Transcribe" {
		t.Errorf("Unexpected last call: %+v", last)
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("Expected calls to be cleared")
	}

	failing := WithError(ErrProviderUnavailable)
	if _, err := failing.Chat(ctx, &ChatRequest{}); !errors.Is(err, ErrProviderUnavailable) {
		t.Errorf("Expected ErrProviderUnavailable, got %v", err)
	}
}
