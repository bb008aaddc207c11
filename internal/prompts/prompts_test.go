package prompts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentPromptEmbedsContext(t *testing.T) {
	out, err := Agent(AgentContext{
		Directory: "/home",
		Files:     "welcome.txt  notes/",
		Categories: []Category{
			{Name: "File System", Commands: []Command{{"ls [-la] [path...]", "List directory contents"}, {"pwd", "Print working directory"}}},
			{Name: "Tools", Commands: []Command{{"calc <expression>", "Evaluate a math expression"}}},
		},
		Mutating: []string{"mkdir", "rm"},
		ReadOnly: []string{"ls", "pwd"},
		Themes:   []string{"dracula", "nord"},
		Presets:  []string{"matrix"},
	})
	require.NoError(t, err)

	for _, want := range []string{
		"- Directory: /home",
		"- Files: welcome.txt  notes/",
		"AVAILABLE COMMANDS (3 total):",
		"FILE SYSTEM:\n- ls [-la] [path...] - List directory contents\n- pwd - Print working directory",
		"TOOLS:\n- calc <expression> - Evaluate a math expression",
		"needsPermission = true for: mkdir, rm",
		"needsPermission = false for: ls, pwd",
		"Available: dracula, nord",
		`"needsPermission": true/false`,
	} {
		require.Contains(t, out, want)
	}
	require.True(t, strings.HasPrefix(out, "You are an autonomous terminal agent"))
}

func TestAgentPromptEmptyDirectory(t *testing.T) {
	out, err := Agent(AgentContext{Directory: "/home/empty"})
	require.NoError(t, err)
	require.Contains(t, out, "- Files: (empty)")
}

func TestChatPrompt(t *testing.T) {
	require.Equal(t, DefaultChat, Chat("  \n"))
	require.Equal(t, "Be terse.", Chat(" Be terse.\n"))
}
