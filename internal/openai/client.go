package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"minai/internal/llm"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o"

	providerName = "openai"
)

// Client is a minimal HTTP wrapper around an OpenAI-compatible chat
// completions API (OpenAI, OpenRouter, aipipe and similar gateways).
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *zap.Logger
}

// NewClient wires together the dependencies for API access.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	trimmed := strings.TrimRight(baseURL, "/")
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    trimmed,
		apiKey:     apiKey,
		logger:     logger,
	}
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   *llm.Usage   `json:"usage,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// wireMessage carries the reasoning fields some OpenAI-compatible gateways
// add next to content.
type wireMessage struct {
	Role             string `json:"role"`
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"`
}

type wireError struct {
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Chat executes a single completion request.
func (c *Client) Chat(ctx context.Context, reqPayload llm.ChatRequest) (llm.ChatResponse, error) {
	if reqPayload.Model == "" {
		reqPayload.Model = DefaultModel
	}
	payload, err := json.Marshal(reqPayload)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "MinAI")

	c.logger.Debug("sending chat request",
		zap.String("model", reqPayload.Model),
		zap.Int("messages", len(reqPayload.Messages)),
		zap.Int("bytes", len(payload)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("chat response", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(body)))

	if resp.StatusCode >= 300 {
		msg := string(body)
		var apiErr wireError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		c.logger.Warn("chat api error", zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return llm.ChatResponse{}, llm.FromStatus(providerName, resp.StatusCode, msg, resp.Header.Get("Retry-After"))
	}

	var wire wireResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return llm.ChatResponse{}, llm.NewProviderError(providerName, llm.ErrorTypeMalformed, "", "parse response: "+err.Error())
	}
	if len(wire.Choices) == 0 {
		return llm.ChatResponse{}, llm.NewProviderError(providerName, llm.ErrorTypeMalformed, "", llm.ErrEmptyResponse.Error())
	}
	return convert(wire), nil
}

func convert(wire wireResponse) llm.ChatResponse {
	out := llm.ChatResponse{Usage: wire.Usage}
	for _, ch := range wire.Choices {
		thinking := ch.Message.ReasoningContent
		if thinking == "" {
			thinking = ch.Message.Reasoning
		}
		content := ch.Message.Content
		// Some reasoning models answer only in the reasoning field.
		if strings.TrimSpace(content) == "" && thinking != "" {
			content = thinking
		}
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        ch.Index,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: content, Thinking: thinking},
			FinishReason: ch.FinishReason,
		})
	}
	return out
}
