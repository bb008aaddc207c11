package mockclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"minai/internal/llm"
)

// Client is a deterministic llm.Client used for tests and CI.
type Client struct {
	prefix string
}

// New returns a mock client that echoes the last user message.
func New() *Client {
	return &Client{prefix: "MOCK"}
}

// Chat satisfies the llm.Client interface.
func (c *Client) Chat(_ context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	content := fmt.Sprintf("%s RESPONSE", c.prefix)
	if n := len(req.Messages); n > 0 {
		if last := strings.TrimSpace(req.Messages[n-1].Content); last != "" {
			content = fmt.Sprintf("%s RESPONSE: %s", c.prefix, last)
		}
	}
	return reply(content), nil
}

func reply(content string) llm.ChatResponse {
	return llm.ChatResponse{
		Choices: []llm.ChatChoice{{
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content},
			FinishReason: "stop",
		}},
		Usage: &llm.Usage{PromptTokens: 42, CompletionTokens: 7, TotalTokens: 49},
	}
}

// ErrExhausted is returned once every scripted step has been consumed.
var ErrExhausted = errors.New("mockclient: script exhausted")

// Step is one scripted answer: Content, or Err when set.
type Step struct {
	Content string
	Err     error
}

// Scripted replays a fixed sequence of answers and records every request.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []llm.ChatRequest
	// Gate, when set, is received from before answering.
	Gate chan struct{}
}

// NewScripted returns a client answering with steps in order.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Reply is shorthand for a scripted client answering with plain contents.
func Reply(contents ...string) *Scripted {
	steps := make([]Step, len(contents))
	for i, c := range contents {
		steps[i] = Step{Content: c}
	}
	return NewScripted(steps...)
}

func (s *Scripted) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	gate := s.Gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return llm.ChatResponse{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.steps) == 0 {
		return llm.ChatResponse{}, ErrExhausted
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	if step.Err != nil {
		return llm.ChatResponse{}, step.Err
	}
	return reply(step.Content), nil
}

// Requests returns a copy of every request seen so far.
func (s *Scripted) Requests() []llm.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.ChatRequest(nil), s.requests...)
}
