// Package insight turns onboarding assessment answers into a short,
// supportive wellness summary using a chat model.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/teslashibe/go-mindwell/pkg/inference"
)

// Limits applied to assessment input before it is sent to the model.
const (
	MaxAnswers      = 50
	MaxAnswerLength = 1000
)

var (
	// ErrNoAnswers is returned when the request carries no usable answers.
	ErrNoAnswers = errors.New("insight: answers required")

	// ErrTooManyAnswers is returned when the request exceeds MaxAnswers.
	ErrTooManyAnswers = fmt.Errorf("insight: at most %d answers", MaxAnswers)

	// ErrEmptyInsight is returned when the model produced no text.
	ErrEmptyInsight = errors.New("insight: model returned empty text")
)

const systemPrompt = `You are a warm, careful mental wellness guide. You read a person's answers to a short wellbeing assessment and write a brief personal insight.

Rules:
- Three short paragraphs at most, plain text, no headings or lists.
- Reflect back what they shared, name one strength, suggest one small practical step.
- Never diagnose, never mention disorders or medication.
- If any answer suggests risk of self-harm, gently encourage contacting local emergency services or a crisis line.`

// Answer is one assessment question and the user's response.
type Answer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Request is the input to Generate.
type Request struct {
	Name    string   `json:"name,omitempty"`
	Answers []Answer `json:"answers"`
}

// Validate checks the request shape.
func (r Request) Validate() error {
	if len(r.Answers) > MaxAnswers {
		return ErrTooManyAnswers
	}
	for _, a := range r.Answers {
		if strings.TrimSpace(a.Answer) != "" {
			return nil
		}
	}
	return ErrNoAnswers
}

// Generator produces insights through an inference provider.
type Generator struct {
	provider    inference.Provider
	model       string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel overrides the provider's default chat model.
func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

// WithMaxTokens bounds the insight length.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator.
func New(provider inference.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:    provider,
		maxTokens:   400,
		temperature: 0.6,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With("component", "insight")
	return g
}

// Generate returns the insight text for req.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	resp, err := g.provider.Chat(ctx, &inference.ChatRequest{
		Messages:    BuildMessages(req),
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", ErrEmptyInsight
	}

	g.logger.Debug("generated insight",
		"answers", len(req.Answers),
		"tokens", resp.Usage.TotalTokens,
		"latency_ms", resp.LatencyMs,
	)
	return text, nil
}

// BuildMessages renders the prompt. Blank answers are skipped and long
// answers truncated to MaxAnswerLength runes.
func BuildMessages(req Request) []inference.Message {
	var b strings.Builder
	if name := strings.TrimSpace(req.Name); name != "" {
		fmt.Fprintf(&b, "Name: %s\n\n", truncate(name, 100))
	}
	b.WriteString("Assessment answers:\n")

	n := 0
	for _, a := range req.Answers {
		answer := strings.TrimSpace(a.Answer)
		if answer == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n", n,
			truncate(strings.TrimSpace(a.Question), MaxAnswerLength),
			truncate(answer, MaxAnswerLength))
	}

	return []inference.Message{
		inference.NewSystemMessage(systemPrompt),
		inference.NewUserMessage(b.String()),
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}
