//go:build integration

package inference

import (
	"context"
	"os"
	"testing"
	"time"
)

// Integration tests for real API calls.
// Run with: go test -tags=integration -v ./pkg/inference/...

func TestOpenAIIntegration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set")
	}

	client, err := NewClient(
		WithAPIKey(apiKey),
		WithModel("gpt-4o-mini"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	t.Run("Health", func(t *testing.T) {
		if err := client.Health(ctx); err != nil {
			t.Errorf("Health check failed: %v", err)
		}
	})

	t.Run("Chat", func(t *testing.T) {
		resp, err := client.Chat(ctx, &ChatRequest{
			Messages: []Message{
				NewSystemMessage("You are a calm wellness coach. Be very brief."),
				NewUserMessage("Suggest one breathing exercise."),
			},
			MaxTokens: 60,
		})
		if err != nil {
			t.Fatalf("Chat failed: %v", err)
		}
		if resp.Message.Content == "" {
			t.Error("Expected non-empty response")
		}
		t.Logf("Response: %s", resp.Message.Content)
		t.Logf("Tokens: %d prompt, %d completion", resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	})

	t.Run("Transcribe", func(t *testing.T) {
		path := os.Getenv("TRANSCRIBE_SAMPLE")
		if path == "" {
			t.Skip("TRANSCRIBE_SAMPLE not set")
		}
		f, err := os.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()

		resp, err := client.Transcribe(ctx, &TranscribeRequest{Audio: f, Filename: path})
		if err != nil {
			t.Fatalf("Transcribe failed: %v", err)
		}
		t.Logf("Transcript: %s", resp.Text)
	})
}

func TestOllamaIntegration(t *testing.T) {
	client, err := NewClient(
		WithBaseURL("http://localhost:11434/v1"),
		WithModel("llama3.2"),
	)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Quick health check to see if Ollama is running
	if err := client.Health(ctx); err != nil {
		t.Skip("Ollama not running: " + err.Error())
	}

	resp, err := client.Chat(ctx, &ChatRequest{
		Messages:  []Message{NewUserMessage("Say 'hello' and nothing else.")},
		MaxTokens: 10,
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	t.Logf("Ollama response: %s", resp.Message.Content)
}
