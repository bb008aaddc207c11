package commands

import (
	"context"
	"strings"
)

// RegisterAI installs ai and chat.
func RegisterAI(reg *Registry, env Env) {
	reg.Register(Spec{
		Name:        "ai",
		Description: "Enter AI agent mode",
		Usage:       "ai",
		Category:    CategoryAI,
		Handler: func(context.Context, *Invocation) (string, error) {
			return env.Shell.SwitchMode(ModeAgent), nil
		},
	})

	reg.Register(Spec{
		Name:        "chat",
		Description: "Chat with the assistant, or ask a single question",
		Usage:       "chat [question]",
		Category:    CategoryAI,
		Markdown:    true,
		Handler: func(ctx context.Context, inv *Invocation) (string, error) {
			question := strings.TrimSpace(strings.Join(inv.Args, " "))
			if question == "" {
				return env.Shell.SwitchMode(ModeChat), nil
			}
			return env.Shell.Ask(ctx, question)
		},
	})
}
