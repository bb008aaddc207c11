package gemini

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"minai/internal/llm"
)

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func TestChatMapsRolesAndResponse(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText("hello there", genai.RoleModel),
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 5, CandidatesTokenCount: 2, TotalTokenCount: 7},
	}}
	c := newWithGenerator(fake, nil)

	resp, err := c.Chat(context.Background(), llm.ChatRequest{
		Temperature: 0.2,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "hi"},
			{Role: llm.RoleAssistant, Content: "hey"},
			{Role: llm.RoleUser, Content: "again"},
		},
	})
	require.NoError(t, err)

	require.Equal(t, DefaultModel, fake.model)
	require.Len(t, fake.contents, 3)
	require.Equal(t, genai.RoleModel, fake.contents[1].Role)
	require.Equal(t, "be brief", fake.config.SystemInstruction.Parts[0].Text)
	require.InDelta(t, 0.2, float64(*fake.config.Temperature), 1e-6)

	content, err := resp.Content()
	require.NoError(t, err)
	require.Equal(t, "hello there", content)
	require.Equal(t, "stop", resp.Choices[0].FinishReason)
	require.Equal(t, 7, resp.Usage.TotalTokens)
}

func TestChatSkipsThoughtParts(t *testing.T) {
	fake := &fakeModels{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: []*genai.Part{{Text: "pondering", Thought: true}, {Text: "answer"}},
		}}},
	}}
	resp, err := newWithGenerator(fake, nil).Chat(context.Background(), llm.ChatRequest{Model: "m"})
	require.NoError(t, err)
	require.Equal(t, "answer", resp.Choices[0].Message.Content)
	require.Equal(t, "m", fake.model)
}

func TestChatErrors(t *testing.T) {
	_, err := newWithGenerator(&fakeModels{resp: &genai.GenerateContentResponse{}}, nil).
		Chat(context.Background(), llm.ChatRequest{})
	pe, ok := llm.IsProviderError(err)
	require.True(t, ok)
	require.Equal(t, llm.ErrorTypeMalformed, pe.Type)

	apiErr := genai.APIError{Code: 429, Message: "quota"}
	_, err = newWithGenerator(&fakeModels{err: fmt.Errorf("wrapped: %w", apiErr)}, nil).
		Chat(context.Background(), llm.ChatRequest{})
	pe, ok = llm.IsProviderError(err)
	require.True(t, ok)
	require.Equal(t, llm.ErrorTypeRateLimit, pe.Type)

	_, err = newWithGenerator(&fakeModels{err: errors.New("dial tcp")}, nil).
		Chat(context.Background(), llm.ChatRequest{})
	require.EqualError(t, err, "gemini request: dial tcp")
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), "", nil)
	require.Error(t, err)
}
