package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"minai/internal/llm"
)

const (
	DefaultModel = "gemini-2.0-flash"
	providerName = "gemini"
)

// generator is the slice of genai.Models the client uses.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client adapts the Gemini API to llm.Client.
type Client struct {
	models generator
	logger *zap.Logger
}

// NewClient creates a Gemini client for apiKey.
func NewClient(ctx context.Context, apiKey string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newWithGenerator(gc.Models, logger), nil
}

func newWithGenerator(models generator, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{models: models, logger: logger}
}

// Chat satisfies the llm.Client interface. System messages become the
// system instruction; assistant turns are sent with the model role.
func (c *Client) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}
	var (
		system   []string
		contents []*genai.Content
	)
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	cfg := &genai.GenerateContentConfig{}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}

	c.logger.Debug("sending gemini request", zap.String("model", model), zap.Int("messages", len(contents)))
	resp, err := c.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.ChatResponse{}, classify(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.ChatResponse{}, llm.NewProviderError(providerName, llm.ErrorTypeMalformed, "", llm.ErrEmptyResponse.Error())
	}

	out := llm.ChatResponse{}
	for i, cand := range resp.Candidates {
		out.Choices = append(out.Choices, llm.ChatChoice{
			Index:        i,
			Message:      llm.Message{Role: llm.RoleAssistant, Content: candidateText(cand)},
			FinishReason: strings.ToLower(string(cand.FinishReason)),
		})
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = &llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	c.logger.Debug("gemini response", zap.Int("candidates", len(resp.Candidates)))
	return out, nil
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil && !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llm.FromStatus(providerName, apiErr.Code, apiErr.Message, "")
	}
	return fmt.Errorf("gemini request: %w", err)
}
