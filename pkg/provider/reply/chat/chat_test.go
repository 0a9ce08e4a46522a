package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/solace/pkg/provider/llm"
	llmmock "github.com/MrWong99/solace/pkg/provider/llm/mock"
	"github.com/MrWong99/solace/pkg/provider/reply"
	"github.com/MrWong99/solace/pkg/provider/reply/chat"
	"github.com/MrWong99/solace/pkg/session"
)

func TestReply_BuildsConversation(t *testing.T) {
	t.Parallel()
	m := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  Tell me more.  "}}
	p, err := chat.New(m, chat.WithSystemPrompt("be brief"), chat.WithMaxTokens(50))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, err := p.Reply(context.Background(), reply.Request{
		Text: "still tired",
		Session: []session.Entry{
			{User: "I am tired", AI: "Tired how?"},
			{User: "still tired", AI: session.Pending},
		},
	})
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if got != "Tell me more." {
		t.Errorf("reply = %q", got)
	}

	req, ok := m.LastRequest()
	if !ok {
		t.Fatal("llm was not called")
	}
	want := []llm.Message{
		{Role: llm.RoleUser, Content: "I am tired"},
		{Role: llm.RoleAssistant, Content: "Tired how?"},
		{Role: llm.RoleUser, Content: "still tired"},
	}
	if len(req.Messages) != len(want) {
		t.Fatalf("messages = %+v, want %+v", req.Messages, want)
	}
	for i := range want {
		if req.Messages[i] != want[i] {
			t.Errorf("messages[%d] = %+v, want %+v", i, req.Messages[i], want[i])
		}
	}
	if req.SystemPrompt != "be brief" {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}
	if req.MaxTokens != 50 {
		t.Errorf("MaxTokens = %d", req.MaxTokens)
	}
}

func TestReply_EmotionFlagAddsInstruction(t *testing.T) {
	t.Parallel()
	m := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "I'm here."}}
	p, _ := chat.New(m, chat.WithEmotionPrompt("EXTRA CARE"))

	if _, err := p.Reply(context.Background(), reply.Request{Text: "I feel hopeless", EmotionFlag: true}); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	req, _ := m.LastRequest()
	if !strings.HasPrefix(req.SystemPrompt, chat.DefaultSystemPrompt) || !strings.HasSuffix(req.SystemPrompt, "EXTRA CARE") {
		t.Errorf("SystemPrompt = %q", req.SystemPrompt)
	}

	if _, err := p.Reply(context.Background(), reply.Request{Text: "nice weather"}); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	req, _ = m.LastRequest()
	if strings.Contains(req.SystemPrompt, "EXTRA CARE") {
		t.Error("emotion prompt added without emotion flag")
	}
}

func TestReply_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("boom")
	tests := []struct {
		name    string
		mock    *llmmock.Provider
		wantErr error
	}{
		{name: "llm error", mock: &llmmock.Provider{CompleteErr: boom}, wantErr: boom},
		{name: "empty content", mock: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " \n"}}, wantErr: reply.ErrNoReply},
		{name: "every model empty", mock: &llmmock.Provider{CompleteErr: errors.Join(boom, llm.ErrEmptyCompletion)}, wantErr: reply.ErrNoReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, _ := chat.New(tt.mock)
			_, err := p.Reply(context.Background(), reply.Request{Text: "hi"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_NilProvider(t *testing.T) {
	t.Parallel()
	if _, err := chat.New(nil); err == nil {
		t.Fatal("expected error for nil llm provider")
	}
}
