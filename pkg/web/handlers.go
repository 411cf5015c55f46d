package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-mindwell/pkg/hubspot"
	"github.com/teslashibe/go-mindwell/pkg/inference"
	"github.com/teslashibe/go-mindwell/pkg/insight"
	"github.com/teslashibe/go-mindwell/pkg/tts"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	RelaySessions int64  `json:"relay_sessions"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok", Version: s.version}
	if s.relay != nil {
		resp.RelaySessions = s.relay.ActiveSessions()
	}
	return c.JSON(resp)
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Messages    []inference.Message `json:"messages"`
	Model       string              `json:"model,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

// ChatResponse is the body returned by POST /api/chat.
type ChatResponse struct {
	Reply string          `json:"reply"`
	Model string          `json:"model"`
	Usage inference.Usage `json:"usage"`
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	if s.chat == nil {
		return errUnavailable("chat")
	}
	var req ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}

	resp, err := s.chat.Chat(c.UserContext(), &inference.ChatRequest{
		Messages:    req.Messages,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return vendorError("openai", err)
	}
	return c.JSON(ChatResponse{
		Reply: resp.Message.Content,
		Model: resp.Model,
		Usage: resp.Usage,
	})
}

func (s *Server) handleInsights(c *fiber.Ctx) error {
	if s.insights == nil {
		return errUnavailable("insights")
	}
	var req insight.Request
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}

	text, err := s.insights.Generate(c.UserContext(), req)
	if err != nil {
		return vendorError("openai", err)
	}
	return c.JSON(fiber.Map{"insight": text})
}

func (s *Server) handleTranscribe(c *fiber.Ctx) error {
	if s.chat == nil {
		return errUnavailable("transcription")
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest("missing audio file")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest("unreadable audio file")
	}
	defer f.Close()

	resp, err := s.chat.Transcribe(c.UserContext(), &inference.TranscribeRequest{
		Audio:    f,
		Filename: fh.Filename,
		Language: c.FormValue("language"),
	})
	if err != nil {
		return vendorError("openai", err)
	}
	return c.JSON(fiber.Map{"text": resp.Text})
}

// SpeechRequest is the body of POST /api/tts.
type SpeechRequest struct {
	Text     string `json:"text"`
	Provider string `json:"provider,omitempty"`
	Voice    string `json:"voice,omitempty"`
}

func (s *Server) handleTTS(c *fiber.Ctx) error {
	var req SpeechRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	ttsReq := tts.Request{Text: req.Text, Voice: req.Voice}
	if err := ttsReq.Validate(); err != nil {
		return badRequest(err.Error())
	}
	if s.speechChain == nil {
		return errUnavailable("text-to-speech")
	}

	provider := s.speechChain
	if name := strings.ToLower(strings.TrimSpace(req.Provider)); name != "" {
		p, ok := s.speech[name]
		if !ok {
			return badRequest("unknown tts provider: " + req.Provider)
		}
		provider = p
	}

	result, err := provider.Synthesize(c.UserContext(), ttsReq)
	if err != nil {
		return vendorError("tts", err)
	}

	c.Set(fiber.HeaderContentType, result.ContentType)
	c.Set("X-TTS-Provider", result.Provider)
	return c.Send(result.Audio)
}

// ContactRequest is the body of POST /api/contacts.
type ContactRequest struct {
	Email      string            `json:"email"`
	FirstName  string            `json:"firstname,omitempty"`
	LastName   string            `json:"lastname,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (s *Server) handleContacts(c *fiber.Ctx) error {
	var req ContactRequest
	if err := c.BodyParser(&req); err != nil {
		return errBadBody
	}
	if strings.TrimSpace(req.Email) == "" {
		return badRequest(hubspot.ErrMissingEmail.Error())
	}
	if s.contacts == nil {
		return errUnavailable("contacts")
	}

	id, created, err := s.contacts.UpsertContact(c.UserContext(), hubspot.Contact{
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Properties: req.Properties,
	})
	if err != nil {
		var apiErr *hubspot.APIError
		if errors.As(err, &apiErr) && apiErr.IsBadRequest() {
			return badRequest(apiErr.Message)
		}
		return vendorError("hubspot", err)
	}
	return c.JSON(fiber.Map{"id": id, "created": created})
}
