package commands

import (
	"context"
	"fmt"
	"strings"
)

var categoryOrder = []string{
	CategoryFileSystem, CategoryContent, CategorySystem, CategoryNetwork,
	CategoryTools, CategoryInfo, CategoryAI,
}

// RegisterHelp installs help, man, which and whatis.
func RegisterHelp(reg *Registry, _ Env) {
	reg.Register(Spec{
		Name:        "help",
		Description: "Show available commands",
		Usage:       "help [command]",
		Category:    CategoryInfo,
		Markdown:    true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			if name := inv.Arg(0); name != "" {
				spec, ok := reg.Get(name)
				if !ok {
					return "", failf("help: no help topics match '%s'", name)
				}
				return fmt.Sprintf("**%s** - %s\n\nUsage: `%s`", spec.Name, spec.Description, spec.Usage), nil
			}
			return HelpText(reg), nil
		},
	})

	reg.Register(Spec{
		Name:        "man",
		Description: "Show the manual page for a command",
		Usage:       "man <command>",
		Category:    CategoryInfo,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			name := inv.Arg(0)
			if name == "" {
				return "What manual page do you want?", nil
			}
			spec, ok := reg.Get(name)
			if !ok {
				return "", failf("No manual entry for %s", name)
			}
			return strings.Join([]string{
				"NAME",
				fmt.Sprintf("    %s - %s", spec.Name, spec.Description),
				"",
				"SYNOPSIS",
				"    " + spec.Usage,
				"",
				"DESCRIPTION",
				"    " + spec.Description,
				"",
				"CATEGORY",
				"    " + spec.Category,
			}, "\n"), nil
		},
	})

	reg.Register(Spec{
		Name:        "which",
		Description: "Locate a command",
		Usage:       "which <command>",
		Category:    CategoryInfo,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			name := inv.Arg(0)
			if name == "" {
				return "", usage("which <command>")
			}
			if exp, ok := reg.GetAlias(name); ok {
				return fmt.Sprintf("%s: aliased to %s", name, exp), nil
			}
			if reg.Has(name) {
				return "/command/" + name, nil
			}
			return "", failf("Command not found: %s", name)
		},
	})

	reg.Register(Spec{
		Name:        "whatis",
		Description: "Describe a command in one line",
		Usage:       "whatis <command>",
		Category:    CategoryInfo,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			name := inv.Arg(0)
			if name == "" {
				return "", usage("whatis <command>")
			}
			if spec, ok := reg.Get(name); ok {
				return fmt.Sprintf("%s - %s", spec.Name, spec.Description), nil
			}
			return name + ": nothing appropriate", nil
		},
	})
}

// HelpText renders the command catalog as Markdown grouped by category.
func HelpText(reg *Registry) string {
	groups := map[string][]Spec{}
	for _, spec := range reg.GetAll() {
		groups[spec.Category] = append(groups[spec.Category], spec)
	}
	var b strings.Builder
	b.WriteString("# MinAI Commands\n")
	seen := map[string]bool{}
	write := func(cat string) {
		specs := groups[cat]
		if len(specs) == 0 || seen[cat] {
			return
		}
		seen[cat] = true
		fmt.Fprintf(&b, "\n## %s\n\n", cat)
		for _, s := range specs {
			fmt.Fprintf(&b, "- `%s` - %s\n", s.Usage, s.Description)
		}
	}
	for _, cat := range categoryOrder {
		write(cat)
	}
	for _, spec := range reg.GetAll() {
		write(spec.Category)
	}
	if aliases := reg.Aliases(); len(aliases) > 0 {
		b.WriteString("\n## Aliases\n\n")
		for _, a := range aliases {
			fmt.Fprintf(&b, "- `%s` = `%s`\n", a.Name, a.Expansion)
		}
	}
	b.WriteString("\nAsk in plain English with `@question`, or type `ai` to let the agent run commands.")
	return b.String()
}
