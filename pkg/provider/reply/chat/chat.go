// Package chat implements reply.Provider on top of an llm.Provider, so Solace
// can answer without the remote reply service.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/solace/pkg/provider/llm"
	"github.com/MrWong99/solace/pkg/provider/reply"
)

var _ reply.Provider = (*Provider)(nil)

// DefaultSystemPrompt frames the model as a supportive listener.
const DefaultSystemPrompt = "You are a warm, patient listener in a spoken conversation. " +
	"Reply in one to three short sentences of plain text that can be read aloud. " +
	"Reflect what the person said, ask gentle open questions, and never diagnose or give medical advice."

// DefaultEmotionPrompt is appended to the system prompt when the utterance
// carries an emotional keyword.
const DefaultEmotionPrompt = "The person may be in distress. Be especially gentle and validating. " +
	"If they mention self-harm or suicide, encourage them to contact local emergency services or a crisis line."

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 200
)

// Option is a functional option for configuring a chat Provider.
type Option func(*Provider)

// WithSystemPrompt replaces [DefaultSystemPrompt]. Empty keeps the default.
func WithSystemPrompt(s string) Option {
	return func(p *Provider) {
		if s != "" {
			p.systemPrompt = s
		}
	}
}

// WithEmotionPrompt replaces [DefaultEmotionPrompt].
func WithEmotionPrompt(s string) Option {
	return func(p *Provider) {
		if s != "" {
			p.emotionPrompt = s
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(p *Provider) {
		p.temperature = t
	}
}

// WithMaxTokens caps the reply length in tokens.
func WithMaxTokens(n int) Option {
	return func(p *Provider) {
		p.maxTokens = n
	}
}

// Provider generates replies with an LLM.
type Provider struct {
	llm           llm.Provider
	systemPrompt  string
	emotionPrompt string
	temperature   float64
	maxTokens     int
}

// New returns a Provider backed by model.
func New(model llm.Provider, opts ...Option) (*Provider, error) {
	if model == nil {
		return nil, errors.New("chat: llm provider must not be nil")
	}
	p := &Provider{
		llm:           model,
		systemPrompt:  DefaultSystemPrompt,
		emotionPrompt: DefaultEmotionPrompt,
		temperature:   defaultTemperature,
		maxTokens:     defaultMaxTokens,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Reply implements reply.Provider. An empty completion is [reply.ErrNoReply].
func (p *Provider) Reply(ctx context.Context, req reply.Request) (string, error) {
	resp, err := p.llm.Complete(ctx, p.buildRequest(req))
	if errors.Is(err, llm.ErrEmptyCompletion) {
		return "", reply.ErrNoReply
	}
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", reply.ErrNoReply
	}
	return text, nil
}

// buildRequest turns completed session entries into user/assistant pairs and
// ends with the current utterance. Pending entries have no answer yet and are
// skipped.
func (p *Provider) buildRequest(req reply.Request) llm.CompletionRequest {
	msgs := make([]llm.Message, 0, 2*len(req.Session)+1)
	for _, e := range req.Session {
		if e.IsPending() || e.User == "" {
			continue
		}
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: e.User},
			llm.Message{Role: llm.RoleAssistant, Content: e.AI},
		)
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: req.Text})

	system := p.systemPrompt
	if req.EmotionFlag {
		system += "\n\n" + p.emotionPrompt
	}
	return llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: system,
		Temperature:  p.temperature,
		MaxTokens:    p.maxTokens,
	}
}
