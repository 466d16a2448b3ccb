package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type mockChatService struct {
	lastParams openai.ChatCompletionNewParams
	response   *openai.ChatCompletion
	err        error
}

func (m *mockChatService) New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.lastParams = params
	return m.response, m.err
}

func TestGenerateTurnReturnsContent(t *testing.T) {
	mock := &mockChatService{
		response: &openai.ChatCompletion{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Content: "That sounds like a lot to carry."}},
			},
		},
	}
	c := &Client{chat: mock, model: openai.ChatModelGPT4oMini}

	got, err := c.GenerateTurn(context.Background(), "system fragment", "I'm tired")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "That sounds like a lot to carry." {
		t.Errorf("unexpected content: %q", got)
	}
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("expected system + user messages, got %d", len(mock.lastParams.Messages))
	}
}

func TestGenerateTurnPropagatesError(t *testing.T) {
	mock := &mockChatService{err: errors.New("rate limited")}
	c := &Client{chat: mock, model: openai.ChatModelGPT4oMini}
	if _, err := c.GenerateTurn(context.Background(), "s", "u"); err == nil {
		t.Error("expected error")
	}
}

func TestGenerateTurnNoChoices(t *testing.T) {
	mock := &mockChatService{response: &openai.ChatCompletion{}}
	c := &Client{chat: mock, model: openai.ChatModelGPT4oMini}
	if _, err := c.GenerateTurn(context.Background(), "s", "u"); err == nil {
		t.Error("expected error when no choices returned")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error when no API key is configured")
	}
}

func TestNewClientWithExplicitKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	c, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-4o"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.model != "gpt-4o" {
		t.Errorf("expected model override, got %s", c.model)
	}
}
