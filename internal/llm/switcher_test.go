package llm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"minai/internal/llm"
	"minai/internal/llm/mockclient"
)

func TestSwitcherRoutesToActiveProvider(t *testing.T) {
	first := mockclient.Reply("from openai")
	second := mockclient.Reply("from gemini")
	s, err := llm.NewSwitcher("gemini",
		llm.Registration{Option: llm.ProviderOption{Key: "openai", Label: "OpenAI", Model: "gpt-4o"}, Client: first},
		llm.Registration{Option: llm.ProviderOption{Key: "gemini", Label: "Gemini"}, Client: second},
	)
	require.NoError(t, err)
	require.Equal(t, "gemini", s.Active().Key)

	resp, err := s.Chat(context.Background(), llm.ChatRequest{Model: "ignored"})
	require.NoError(t, err)
	got, err := resp.Content()
	require.NoError(t, err)
	require.Equal(t, "from gemini", got)
	require.Equal(t, "ignored", second.Requests()[0].Model)

	require.NoError(t, s.Use("openai"))
	_, err = s.Chat(context.Background(), llm.ChatRequest{Model: "ignored"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", first.Requests()[0].Model)

	require.Error(t, s.Use("claude"))
	require.Equal(t, []string{"Gemini", "OpenAI"}, []string{s.Options()[0].Label, s.Options()[1].Label})
}

func TestSwitcherRejectsBadRegistrations(t *testing.T) {
	_, err := llm.NewSwitcher("x")
	require.Error(t, err)
	_, err = llm.NewSwitcher("x", llm.Registration{Option: llm.ProviderOption{Key: " "}, Client: mockclient.New()})
	require.Error(t, err)
	_, err = llm.NewSwitcher("x", llm.Registration{Option: llm.ProviderOption{Key: "a"}})
	require.Error(t, err)

	s, err := llm.NewSwitcher("missing",
		llm.Registration{Option: llm.ProviderOption{Key: "b"}, Client: mockclient.New()},
		llm.Registration{Option: llm.ProviderOption{Key: "a"}, Client: mockclient.New()})
	require.NoError(t, err)
	require.Equal(t, "a", s.Active().Key)
}
