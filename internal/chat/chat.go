package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"minai/internal/llm"
	"minai/internal/prompts"
	"minai/internal/vfs"
)

// Options tunes an Assistant.
type Options struct {
	Model       string
	Temperature float64
	// MaxHistory caps how many past messages are replayed; 0 means all.
	MaxHistory int
	Logger     *zap.Logger
}

// Assistant answers chat-mode questions within the current conversation.
type Assistant struct {
	mgr    *Manager
	fs     *vfs.FileSystem
	opts   Options
	logger *zap.Logger

	mu     sync.RWMutex
	client llm.Client
}

// NewAssistant wires an assistant. client may be nil until credentials exist.
func NewAssistant(client llm.Client, mgr *Manager, fs *vfs.FileSystem, opts Options) *Assistant {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{client: client, mgr: mgr, fs: fs, opts: opts, logger: logger}
}

// SetClient swaps the LLM client.
func (a *Assistant) SetClient(c llm.Client) {
	a.mu.Lock()
	a.client = c
	a.mu.Unlock()
}

// SystemPrompt returns the prompt configured in the virtual tree, or the
// built-in default when the file is missing or blank.
func (a *Assistant) SystemPrompt() string {
	custom, err := a.fs.Cat(vfs.SystemPromptPath)
	if err != nil {
		custom = ""
	}
	return prompts.Chat(custom)
}

// Ask sends question with the conversation so far and records both sides.
func (a *Assistant) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("empty question")
	}
	a.mu.RLock()
	client := a.client
	a.mu.RUnlock()
	if client == nil {
		return "", llm.ErrNoProvider
	}

	conv, err := a.mgr.Current()
	if err != nil {
		return "", err
	}
	history := conv.Messages()
	if n := a.opts.MaxHistory; n > 0 && len(history) > n {
		history = history[len(history)-n:]
	}
	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: a.SystemPrompt()})
	msgs = append(msgs, history...)
	user := llm.Message{Role: llm.RoleUser, Content: question}
	msgs = append(msgs, user)

	a.logger.Debug("chat request", zap.String("conversation", conv.Key()), zap.Int("messages", len(msgs)))
	resp, err := client.Chat(ctx, llm.ChatRequest{Model: a.opts.Model, Temperature: a.opts.Temperature, Messages: msgs})
	if err != nil {
		return "", err
	}
	answer, err := resp.Content()
	if err != nil {
		return "", err
	}
	if err := a.mgr.Append(conv, user, llm.Message{Role: llm.RoleAssistant, Content: answer}); err != nil {
		a.logger.Warn("persist chat turn", zap.Error(err))
		return answer, fmt.Errorf("save conversation: %w", err)
	}
	return answer, nil
}

// Reset starts a new conversation.
func (a *Assistant) Reset() (string, error) {
	conv, err := a.mgr.New("")
	if err != nil {
		return "", err
	}
	return conv.Key(), nil
}
