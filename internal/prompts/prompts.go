package prompts

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

// DefaultChat is the chat system prompt used when the configuration file is
// missing or empty.
const DefaultChat = "You are MinAI, a helpful assistant."

//go:embed agent.tmpl
var agentTemplate string

var agentTmpl = template.Must(template.New("agent").Funcs(template.FuncMap{
	"join":  strings.Join,
	"upper": strings.ToUpper,
}).Parse(agentTemplate))

// Command is one catalog line.
type Command struct {
	Usage       string
	Description string
}

// Category groups catalog lines under a heading.
type Category struct {
	Name     string
	Commands []Command
}

// AgentContext is everything the agent prompt embeds.
type AgentContext struct {
	Directory  string
	Files      string
	Categories []Category
	Mutating   []string
	ReadOnly   []string
	Themes     []string
	Presets    []string
}

// Count returns the number of catalog commands.
func (c AgentContext) Count() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.Commands)
	}
	return n
}

// Agent renders the agent system prompt.
func Agent(ctx AgentContext) (string, error) {
	var b strings.Builder
	if err := agentTmpl.Execute(&b, ctx); err != nil {
		return "", fmt.Errorf("render agent prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}

// Chat returns the chat system prompt, falling back to DefaultChat.
func Chat(custom string) string {
	if trimmed := strings.TrimSpace(custom); trimmed != "" {
		return trimmed
	}
	return DefaultChat
}
