package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"minai/internal/config"
	"minai/internal/credentials"
	"minai/internal/gemini"
	"minai/internal/llm"
	mockclient "minai/internal/llm/mockclient"
	"minai/internal/openai"
)

// buildSwitcher registers every provider that has credentials. It returns nil
// when none does, which leaves the AI features disabled.
func buildSwitcher(ctx context.Context, cfg config.Config, creds *credentials.Credentials, logger *zap.Logger) (*llm.Switcher, error) {
	if os.Getenv("MINAI_MOCK_LLM") == "1" || cfg.Provider == config.ProviderMock {
		logger.Info("using mock LLM client")
		return llm.NewSwitcher(config.ProviderMock, llm.Registration{
			Option: llm.ProviderOption{Key: config.ProviderMock, Label: "Mock", Model: config.DefaultMockModel},
			Client: mockclient.New(),
		})
	}

	active := cfg.Provider
	if !creds.IsConfigured(active) && creds.DefaultProvider != "" {
		active = strings.ToLower(creds.DefaultProvider)
	}
	modelFor := func(provider string) string {
		if provider == cfg.Provider && cfg.Model != "" {
			return cfg.Model
		}
		return cfg.ModelFor(provider)
	}

	var regs []llm.Registration
	if creds.IsConfigured(config.ProviderOpenAI) {
		baseURL := creds.GetBaseURL(config.ProviderOpenAI)
		if baseURL == "" {
			baseURL = cfg.BaseURL
		}
		regs = append(regs, llm.Registration{
			Option: llm.ProviderOption{Key: config.ProviderOpenAI, Label: "OpenAI", Model: modelFor(config.ProviderOpenAI)},
			Client: openai.NewClient(baseURL, creds.GetAPIKey(config.ProviderOpenAI), cfg.RequestTimeout(), logger.Named("openai")),
		})
	}
	if creds.IsConfigured(config.ProviderGemini) {
		client, err := gemini.NewClient(ctx, creds.GetAPIKey(config.ProviderGemini), logger.Named("gemini"))
		switch {
		case err != nil && active == config.ProviderGemini:
			return nil, fmt.Errorf("init gemini provider: %w", err)
		case err != nil:
			logger.Warn("gemini provider unavailable", zap.Error(err))
		default:
			regs = append(regs, llm.Registration{
				Option: llm.ProviderOption{Key: config.ProviderGemini, Label: "Gemini", Model: modelFor(config.ProviderGemini)},
				Client: client,
			})
		}
	}
	if len(regs) == 0 {
		logger.Info("no AI provider configured")
		return nil, nil
	}

	sw, err := llm.NewSwitcher(active, regs...)
	if err != nil {
		return nil, err
	}
	logger.Info("providers ready", zap.String("active", sw.Active().Key), zap.Int("count", len(regs)))
	return sw, nil
}
