//go:build integration

package tts

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"
)

// Run with: go test -tags=integration -v ./pkg/tts/...

func synthesizeOnce(t *testing.T, p Provider) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := p.Synthesize(ctx, Request{Text: "Take a slow breath in, and let it go."})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(result.Audio) == 0 {
		t.Fatal("expected audio")
	}
	if result.Format.Encoding == EncodingMP3 && !bytes.HasPrefix(result.Audio, []byte("ID3")) && result.Audio[0] != 0xFF {
		t.Errorf("audio does not look like MP3: % x", result.Audio[:4])
	}
	t.Logf("%s: %d bytes in %dms", p.Name(), len(result.Audio), result.LatencyMs)
}

func TestOpenAIIntegration(t *testing.T) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		t.Skip("OPENAI_API_KEY not set")
	}
	p, err := NewOpenAI(WithAPIKey(key))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	synthesizeOnce(t, p)
}

func TestElevenLabsIntegration(t *testing.T) {
	key := os.Getenv("ELEVENLABS_API_KEY")
	if key == "" {
		t.Skip("ELEVENLABS_API_KEY not set")
	}
	p, err := NewElevenLabs(WithAPIKey(key))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	synthesizeOnce(t, p)
}

func TestGoogleIntegration(t *testing.T) {
	creds := os.Getenv("GOOGLE_TTS_CREDENTIALS_FILE")
	if creds == "" {
		t.Skip("GOOGLE_TTS_CREDENTIALS_FILE not set")
	}
	p, err := NewGoogle(context.Background(), WithCredentialsFile(creds))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	synthesizeOnce(t, p)
}
