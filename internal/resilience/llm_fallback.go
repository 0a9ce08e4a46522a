package resilience

import (
	"context"
	"errors"
	"strings"

	"github.com/MrWong99/solace/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] over an ordered list of chat models,
// for example a hosted model backed by a local Ollama instance.
//
// A completion with no text counts as a failed attempt so the next model gets
// a chance to answer the user. When every model fails and at least one of
// them answered empty, the error wraps [llm.ErrEmptyCompletion].
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred model.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional model.
func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

// States reports the breaker state of every model.
func (f *LLMFallback) States() []ProviderState { return f.group.States() }

// Complete returns the first non-empty completion.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	var sawEmpty bool
	resp, err := ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		resp, err := p.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp == nil || strings.TrimSpace(resp.Content) == "" {
			sawEmpty = true
			return nil, llm.ErrEmptyCompletion
		}
		return resp, nil
	})
	if err != nil && sawEmpty && !errors.Is(err, llm.ErrEmptyCompletion) {
		err = errors.Join(err, llm.ErrEmptyCompletion)
	}
	return resp, err
}
