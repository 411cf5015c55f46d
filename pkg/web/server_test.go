package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-mindwell/pkg/hub"
	"github.com/teslashibe/go-mindwell/pkg/hubspot"
	"github.com/teslashibe/go-mindwell/pkg/inference"
	"github.com/teslashibe/go-mindwell/pkg/insight"
	"github.com/teslashibe/go-mindwell/pkg/ratelimit"
	"github.com/teslashibe/go-mindwell/pkg/relay"
	"github.com/teslashibe/go-mindwell/pkg/tts"
)

type fakeContacts struct {
	got     hubspot.Contact
	id      string
	created bool
	err     error
}

func (f *fakeContacts) UpsertContact(ctx context.Context, c hubspot.Contact) (string, bool, error) {
	f.got = c
	return f.id, f.created, f.err
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("error body is not JSON: %s", body)
	}
	return e.Error
}

func TestHealth(t *testing.T) {
	s := NewServer(":0", WithVersion("1.2.3"), WithRelay(relay.New(relay.WithAPIKey("k"))))
	resp, body := doJSON(t, s, http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var h HealthResponse
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.Version != "1.2.3" || h.RelaySessions != 0 {
		t.Errorf("unexpected health %+v", h)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected request id header")
	}
}

func TestMetrics(t *testing.T) {
	s := NewServer(":0")
	resp, body := doJSON(t, s, http.MethodGet, "/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "mindwell_relay_active_sessions") {
		t.Error("expected relay gauge in exposition")
	}
}

func TestRealtimeMounted(t *testing.T) {
	s := NewServer(":0", WithRelay(relay.New(relay.WithAPIKey("k"))))
	resp, body := doJSON(t, s, http.MethodGet, "/realtime", nil)
	if resp.StatusCode != http.StatusBadRequest || string(body) != relay.BodyExpectedUpgrade {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}
}

func TestEventsRequireUpgrade(t *testing.T) {
	h := hub.New("events", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	s := NewServer(":0", WithEventHub(h))
	resp, _ := doJSON(t, s, http.MethodGet, "/ws/events", nil)
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("expected 426, got %d", resp.StatusCode)
	}
}

func TestChat(t *testing.T) {
	mock := inference.NewMock()
	s := NewServer(":0", WithInference(mock))

	t.Run("ok", func(t *testing.T) {
		resp, body := doJSON(t, s, http.MethodPost, "/api/chat", ChatRequest{
			Messages:  []inference.Message{inference.NewUserMessage("hi")},
			MaxTokens: 50,
		})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, body)
		}
		var out ChatResponse
		if err := json.Unmarshal(body, &out); err != nil {
			t.Fatal(err)
		}
		if out.Reply != "Mock response" || out.Usage.TotalTokens != 15 {
			t.Errorf("unexpected response %+v", out)
		}
		if got := mock.LastCall().Chat.MaxTokens; got != 50 {
			t.Errorf("max_tokens not forwarded: %d", got)
		}
	})

	tests := []struct {
		name string
		body any
	}{
		{"empty messages", ChatRequest{}},
		{"bad role", ChatRequest{Messages: []inference.Message{{Role: "tool", Content: "x"}}}},
		{"bad temperature", ChatRequest{Messages: []inference.Message{inference.NewUserMessage("x")}, Temperature: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, s, http.MethodPost, "/api/chat", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", resp.StatusCode, body)
			}
		})
	}

	t.Run("invalid json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.App().Test(req, -1)
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("vendor failure", func(t *testing.T) {
		failing := NewServer(":0", WithInference(inference.WithError(&inference.APIError{StatusCode: 500, Message: "down"})))
		resp, body := doJSON(t, failing, http.MethodPost, "/api/chat", ChatRequest{
			Messages: []inference.Message{inference.NewUserMessage("hi")},
		})
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
		if msg := errorMessage(t, body); strings.Contains(msg, "down") {
			t.Errorf("vendor detail leaked: %q", msg)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		resp, _ := doJSON(t, NewServer(":0"), http.MethodPost, "/api/chat", ChatRequest{})
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", resp.StatusCode)
		}
	})
}

func TestInsights(t *testing.T) {
	mock := inference.NewMock()
	s := NewServer(":0", WithInsights(insight.New(mock)))

	resp, body := doJSON(t, s, http.MethodPost, "/api/insights", insight.Request{
		Name:    "Sam",
		Answers: []insight.Answer{{Question: "Sleep?", Answer: "Restless"}},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Insight string `json:"insight"`
	}
	json.Unmarshal(body, &out)
	if out.Insight != "Mock response" {
		t.Errorf("unexpected insight %q", out.Insight)
	}

	resp, _ = doJSON(t, s, http.MethodPost, "/api/insights", insight.Request{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for no answers, got %d", resp.StatusCode)
	}
}

func TestTranscribe(t *testing.T) {
	mock := inference.NewMock()
	s := NewServer(":0", WithInference(mock))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "clip.webm")
	fw.Write([]byte("fake-audio"))
	mw.WriteField("language", "en")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(string(body), "mock transcript") {
		t.Errorf("unexpected body %s", body)
	}

	resp, _ = doJSON(t, s, http.MethodPost, "/api/transcribe", map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 without file, got %d", resp.StatusCode)
	}
}

func TestTTS(t *testing.T) {
	eleven := tts.NewMock()
	eleven.ProviderName = tts.ProviderElevenLabs
	openai := tts.NewMock()
	openai.ProviderName = tts.ProviderOpenAI
	s := NewServer(":0", WithSpeech(eleven, openai))

	t.Run("default chain", func(t *testing.T) {
		resp, body := doJSON(t, s, http.MethodPost, "/api/tts", SpeechRequest{Text: "breathe in"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, body)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "audio/mpeg" {
			t.Errorf("unexpected content type %q", ct)
		}
		if !bytes.HasPrefix(body, []byte("ID3")) {
			t.Error("expected mp3 payload")
		}
		if eleven.CallCount("Synthesize") != 1 || openai.CallCount("Synthesize") != 0 {
			t.Error("chain should stop at first provider")
		}
	})

	t.Run("named provider", func(t *testing.T) {
		openai.Reset()
		resp, _ := doJSON(t, s, http.MethodPost, "/api/tts", SpeechRequest{Text: "hi", Provider: "OpenAI", Voice: "nova"})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d", resp.StatusCode)
		}
		if call := openai.LastCall(); call == nil || call.Voice != "nova" {
			t.Errorf("voice not forwarded: %+v", call)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/tts", SpeechRequest{Text: "hi", Provider: "polly"})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("empty text", func(t *testing.T) {
		resp, _ := doJSON(t, s, http.MethodPost, "/api/tts", SpeechRequest{Text: "  "})
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("all providers fail", func(t *testing.T) {
		failing := NewServer(":0", WithSpeech(tts.WithError(errors.New("boom"))))
		resp, _ := doJSON(t, failing, http.MethodPost, "/api/tts", SpeechRequest{Text: "hi"})
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
	})

	t.Run("not configured", func(t *testing.T) {
		resp, _ := doJSON(t, NewServer(":0"), http.MethodPost, "/api/tts", SpeechRequest{Text: "hi"})
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", resp.StatusCode)
		}
	})
}

func TestContacts(t *testing.T) {
	fake := &fakeContacts{id: "42", created: true}
	s := NewServer(":0", WithContacts(fake))

	resp, body := doJSON(t, s, http.MethodPost, "/api/contacts", ContactRequest{
		Email:      "sam@example.com",
		FirstName:  "Sam",
		Properties: map[string]string{"plan": "free"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		ID      string `json:"id"`
		Created bool   `json:"created"`
	}
	json.Unmarshal(body, &out)
	if out.ID != "42" || !out.Created {
		t.Errorf("unexpected body %s", body)
	}
	if fake.got.FirstName != "Sam" || fake.got.Properties["plan"] != "free" {
		t.Errorf("contact not forwarded: %+v", fake.got)
	}

	resp, _ = doJSON(t, s, http.MethodPost, "/api/contacts", ContactRequest{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing email, got %d", resp.StatusCode)
	}

	fake.err = &hubspot.APIError{StatusCode: 500, Message: "oops"}
	resp, _ = doJSON(t, s, http.MethodPost, "/api/contacts", ContactRequest{Email: "a@b.co"})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, NewServer(":0"), http.MethodPost, "/api/contacts", ContactRequest{Email: "a@b.co"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewMemory(ratelimit.PerMinute(2))
	defer limiter.Close()
	s := NewServer(":0", WithInference(inference.NewMock()), WithRateLimiter(limiter))

	req := ChatRequest{Messages: []inference.Message{inference.NewUserMessage("hi")}}
	for i := 0; i < 2; i++ {
		if resp, _ := doJSON(t, s, http.MethodPost, "/api/chat", req); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: status %d", i, resp.StatusCode)
		}
	}
	resp, body := doJSON(t, s, http.MethodPost, "/api/chat", req)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if msg := errorMessage(t, body); msg != "rate limit exceeded" {
		t.Errorf("unexpected error %q", msg)
	}

	// Health is outside /api and never limited.
	if resp, _ := doJSON(t, s, http.MethodGet, "/health", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("health limited: %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(":0", WithCORSOrigins("https://app.example.com"))
	req := httptest.NewRequest(http.MethodOptions, "/api/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("unexpected allow origin %q", got)
	}
}
