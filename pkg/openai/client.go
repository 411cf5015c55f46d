// Package openai speaks the OpenAI Realtime event protocol, either directly
// against the vendor or through the mindwell relay.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-mindwell/pkg/relay"
)

const (
	RealtimeURL = relay.DefaultUpstreamURL
	Model       = relay.DefaultModel
)

var (
	// ErrNotConnected is returned when sending before Connect.
	ErrNotConnected = errors.New("openai: not connected")

	// ErrClosed is returned by Connect when the socket closes before the
	// relay reports the upstream as ready.
	ErrClosed = errors.New("openai: connection closed")
)

// RelayError is an error control message sent by the relay.
type RelayError struct {
	Message string
}

func (e *RelayError) Error() string { return "relay: " + e.Message }

// Config holds client configuration.
type Config struct {
	// URL is the realtime endpoint: the vendor URL, or the relay's /realtime.
	URL string

	// APIKey authenticates direct connections. Leave empty through the relay.
	APIKey string

	// Model is added as the model query parameter on direct connections.
	Model string

	// ViaRelay makes Connect wait for proxy.connected before returning.
	ViaRelay bool

	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

// Option configures the client.
type Option func(*Config)

// WithURL sets the endpoint.
func WithURL(u string) Option {
	return func(c *Config) { c.URL = u }
}

// WithAPIKey sets the bearer credential for direct connections.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the realtime model.
func WithModel(m string) Option {
	return func(c *Config) { c.Model = m }
}

// WithRelay connects through a mindwell relay at u.
func WithRelay(u string) Option {
	return func(c *Config) {
		c.URL = u
		c.ViaRelay = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// Event is the subset of realtime server events the client understands.
type Event struct {
	Type       string          `json:"type"`
	Message    string          `json:"message,omitempty"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      *EventError     `json:"error,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// EventError is the error object of a vendor "error" event.
type EventError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Client manages one realtime WebSocket connection.
type Client struct {
	config Config
	logger *slog.Logger

	ws   *websocket.Conn
	wsMu sync.Mutex

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	closed    atomic.Bool

	// connectErr is set when the relay refuses the session.
	connectErr atomic.Value

	// Callbacks. Set before Connect.
	OnTranscript     func(text string, isFinal bool)
	OnAudioDelta     func(pcm16 []byte)
	OnResponseDone   func()
	OnSessionCreated func()
	OnSpeechStarted  func()
	OnSpeechStopped  func()
	OnRelayInfo      func(msg string)
	OnError          func(err error)
	OnEvent          func(e Event)
}

// NewClient creates a realtime client.
func NewClient(opts ...Option) *Client {
	cfg := Config{
		URL:              RealtimeURL,
		Model:            Model,
		HandshakeTimeout: 10 * time.Second,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "openai.realtime"),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Connect dials the endpoint. Through a relay it returns once the relay
// reports the upstream socket open, or with the relay's error.
func (c *Client) Connect(ctx context.Context) error {
	target, header, err := c.target()
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}
	ws, resp, err := dialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("openai: dial %s: %w (status %d)", c.config.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("openai: dial %s: %w", c.config.URL, err)
	}

	c.wsMu.Lock()
	c.ws = ws
	c.wsMu.Unlock()

	go c.handleMessages()

	if !c.config.ViaRelay {
		c.markReady()
		return nil
	}

	select {
	case <-c.ready:
		return nil
	case <-c.done:
		select {
		case <-c.ready:
			return nil
		default:
		}
		if v, ok := c.connectErr.Load().(error); ok {
			return v
		}
		return ErrClosed
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	}
}

func (c *Client) target() (string, http.Header, error) {
	if c.config.ViaRelay {
		return c.config.URL, nil, nil
	}
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return "", nil, fmt.Errorf("openai: parse url: %w", err)
	}
	if c.config.Model != "" {
		q := u.Query()
		q.Set("model", c.config.Model)
		u.RawQuery = q.Encode()
	}
	header := http.Header{"OpenAI-Beta": []string{"realtime=v1"}}
	if c.config.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return u.String(), header, nil
}

// ConfigureSession sets voice and instructions. Empty modalities default to
// text and audio.
func (c *Client) ConfigureSession(instructions, voice string, modalities ...string) error {
	if voice == "" {
		voice = "alloy"
	}
	if len(modalities) == 0 {
		modalities = []string{"text", "audio"}
	}

	return c.sendJSON(map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"modalities":          modalities,
			"instructions":        instructions,
			"voice":               voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
			"turn_detection": map[string]any{
				"type":                "server_vad",
				"threshold":           0.5,
				"prefix_padding_ms":   300,
				"silence_duration_ms": 500,
			},
		},
	})
}

// SendAudio appends PCM16 audio to the input buffer.
func (c *Client) SendAudio(pcm16 []byte) error {
	return c.sendJSON(map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm16),
	})
}

// CommitAudio commits the input buffer.
func (c *Client) CommitAudio() error {
	return c.sendJSON(map[string]string{"type": "input_audio_buffer.commit"})
}

// ClearAudio clears the input buffer.
func (c *Client) ClearAudio() error {
	return c.sendJSON(map[string]string{"type": "input_audio_buffer.clear"})
}

// SendText adds a user message and requests a response.
func (c *Client) SendText(text string) error {
	msg := map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []map[string]any{
				{"type": "input_text", "text": text},
			},
		},
	}
	if err := c.sendJSON(msg); err != nil {
		return err
	}
	return c.sendJSON(map[string]string{"type": "response.create"})
}

// CancelResponse interrupts the current response.
func (c *Client) CancelResponse() error {
	return c.sendJSON(map[string]string{"type": "response.cancel"})
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a normal close frame and closes the socket.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.ws.Close()
}

// IsReady reports whether the session can accept events.
func (c *Client) IsReady() bool {
	select {
	case <-c.ready:
		return !c.closed.Load()
	default:
		return false
	}
}

func (c *Client) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// handleMessages dispatches server events until the socket closes.
func (c *Client) handleMessages() {
	defer close(c.done)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure) && c.OnError != nil {
				c.OnError(err)
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.logger.Debug("ignoring non-JSON frame", "bytes", len(data))
			continue
		}
		ev.Raw = data
		c.dispatch(ev)
	}
}

func (c *Client) dispatch(ev Event) {
	if c.OnEvent != nil {
		c.OnEvent(ev)
	}

	switch ev.Type {
	case relay.TypeProxyConnected:
		c.markReady()

	case relay.TypeInfo:
		c.logger.Info("relay info", "message", ev.Message)
		if c.OnRelayInfo != nil {
			c.OnRelayInfo(ev.Message)
		}

	case "error":
		var err error
		if ev.Error != nil {
			err = fmt.Errorf("openai: %s (%s)", ev.Error.Message, ev.Error.Code)
		} else {
			err = &RelayError{Message: ev.Message}
			select {
			case <-c.ready:
			default:
				c.connectErr.Store(err)
			}
		}
		c.logger.Warn("realtime error", "error", err)
		if c.OnError != nil {
			c.OnError(err)
		}

	case "session.created":
		if c.OnSessionCreated != nil {
			c.OnSessionCreated()
		}

	case "input_audio_buffer.speech_started":
		if c.OnSpeechStarted != nil {
			c.OnSpeechStarted()
		}

	case "input_audio_buffer.speech_stopped":
		if c.OnSpeechStopped != nil {
			c.OnSpeechStopped()
		}

	case "conversation.item.input_audio_transcription.completed":
		if c.OnTranscript != nil {
			c.OnTranscript(ev.Transcript, true)
		}

	case "response.audio.delta":
		if c.OnAudioDelta == nil {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(ev.Delta)
		if err != nil {
			c.logger.Warn("bad audio delta", "error", err)
			return
		}
		c.OnAudioDelta(pcm)

	case "response.audio_transcript.delta", "response.text.delta":
		if c.OnTranscript != nil {
			c.OnTranscript(ev.Delta, false)
		}

	case "response.done":
		if c.OnResponseDone != nil {
			c.OnResponseDone()
		}

	default:
		c.logger.Debug("realtime event", "type", ev.Type)
	}
}

// sendJSON writes v as one text frame.
func (c *Client) sendJSON(v any) error {
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if c.ws == nil || c.closed.Load() {
		return ErrNotConnected
	}
	return c.ws.WriteJSON(v)
}
