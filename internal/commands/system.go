package commands

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Themes lists the names accepted by `theme set`.
var Themes = []string{"cyberpunk", "ubuntu", "hacker", "retro", "dracula", "monokai", "nord", "solarized-dark", "solarized-light"}

// BackgroundPresets maps bgset preset names to image URLs.
var BackgroundPresets = map[string]string{
	"cyberpunk": "https://images.unsplash.com/photo-1605810230434-7631ac76ec81?w=1920&q=80",
	"matrix":    "https://images.unsplash.com/photo-1526374965328-7f61d4dc18c5?w=1920&q=80",
	"space":     "https://images.unsplash.com/photo-1451187580459-43490279c0fa?w=1920&q=80",
	"retro":     "https://images.unsplash.com/photo-1550751827-4bd374c3f58b?w=1920&q=80",
	"nature":    "https://images.unsplash.com/photo-1472214103451-9374bd1c798e?w=1920&q=80",
}

// PresetNames lists the bgset presets in display order.
var PresetNames = []string{"cyberpunk", "matrix", "space", "retro", "nature"}

// ParserModes lists the values accepted by `set mode`.
var ParserModes = []string{"strict", "helpful", "smart"}

const resetMessage = "File system reset to default state. All user data cleared."

// RegisterSystem installs date, whoami, uname, df, clear, history, reset,
// exit, config, alias, unalias, set, theme, bgset and neofetch.
func RegisterSystem(reg *Registry, env Env) {
	fs := env.FS

	simple := func(name, desc, use, out string) {
		reg.Register(Spec{
			Name: name, Description: desc, Usage: use, Category: CategorySystem,
			Handler: func(context.Context, *Invocation) (string, error) { return out, nil },
		})
	}

	reg.Register(Spec{
		Name:        "date",
		Description: "Display current date/time",
		Usage:       "date",
		Category:    CategorySystem,
		Handler: func(context.Context, *Invocation) (string, error) {
			return env.Now().Format("Mon Jan 02 2006 15:04:05 GMT-0700 (MST)"), nil
		},
	})
	simple("whoami", "Print current user", "whoami", "user")
	reg.Register(Spec{
		Name:        "uname",
		Description: "Print system information",
		Usage:       "uname [-a]",
		Category:    CategorySystem,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			if inv.Flags.Has('a') {
				return "Linux minai 5.10.0 generic x86_64", nil
			}
			return "Linux", nil
		},
	})
	simple("df", "Report file system usage", "df",
		"Filesystem     1K-blocks      Used Available Use% Mounted on\n/dev/root       10000000   2000000   8000000  20% /")

	reg.Register(Spec{
		Name:        "clear",
		Description: "Clear terminal screen",
		Usage:       "clear",
		Category:    CategorySystem,
		Handler: func(context.Context, *Invocation) (string, error) {
			env.UI.Clear()
			return "", nil
		},
	})

	reg.Register(Spec{
		Name:        "history",
		Description: "Show command history",
		Usage:       "history",
		Category:    CategorySystem,
		Handler: func(context.Context, *Invocation) (string, error) {
			lines := env.Shell.History()
			out := make([]string, len(lines))
			for i, line := range lines {
				out[i] = fmt.Sprintf("%d  %s", i+1, line)
			}
			return strings.Join(out, "\n"), nil
		},
	})

	reg.Register(Spec{
		Name:            "reset",
		Description:     "Reset file system to default",
		Usage:           "reset",
		Category:        CategorySystem,
		NeedsPermission: true,
		Handler: func(context.Context, *Invocation) (string, error) {
			if err := fs.Reset(); err != nil {
				return "", err
			}
			if _, err := LoadAliases(reg, fs); err != nil {
				env.Logger.Warn("reload aliases after reset", zap.Error(err))
			}
			return resetMessage, nil
		},
	})

	simple("exit", "Exit terminal", "exit", `Type "exit" is not needed. Just close the terminal.`)

	reg.Register(Spec{
		Name:        "config",
		Description: "Open configuration settings",
		Usage:       "config",
		Category:    CategorySystem,
		Handler: func(ctx context.Context, _ *Invocation) (string, error) {
			env.UI.Print("Opening configuration...", KindSystem)
			if err := env.UI.OpenSettings(ctx); err != nil {
				return "", failf("config: %v", err)
			}
			return "Configuration saved.", nil
		},
	})

	reg.Register(Spec{
		Name:        "alias",
		Description: "Create or list aliases",
		Usage:       "alias [name=command]",
		Category:    CategorySystem,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			if len(inv.Args) == 0 {
				aliases := reg.Aliases()
				if len(aliases) == 0 {
					return "No aliases defined", nil
				}
				lines := make([]string, len(aliases))
				for i, a := range aliases {
					lines[i] = fmt.Sprintf("%s='%s'", a.Name, a.Expansion)
				}
				return strings.Join(lines, "\n"), nil
			}
			input := strings.Join(inv.Args, " ")
			if !strings.Contains(input, "=") {
				if exp, ok := reg.GetAlias(input); ok {
					return fmt.Sprintf("%s='%s'", input, exp), nil
				}
				return "", failf("alias: %s: not found", input)
			}
			name, exp, ok := ParseAliasLine(input)
			if !ok {
				return "", usage("alias [name=command]")
			}
			reg.SetAlias(name, exp)
			if err := persistAlias(fs, name, exp); err != nil {
				return "", err
			}
			return fmt.Sprintf("Alias '%s' set to '%s'", name, exp), nil
		},
	})

	reg.Register(Spec{
		Name:        "unalias",
		Description: "Remove an alias",
		Usage:       "unalias <name>",
		Category:    CategorySystem,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			name := inv.Arg(0)
			if name == "" {
				return "", usage("unalias <name>")
			}
			if _, ok := reg.GetAlias(name); !ok {
				return "", failf("unalias: %s: not found", name)
			}
			reg.RemoveAlias(name)
			if err := persistAlias(fs, name, ""); err != nil {
				return "", err
			}
			return fmt.Sprintf("Alias '%s' removed", name), nil
		},
	})

	reg.Register(Spec{
		Name:        "set",
		Description: "Show or change shell settings",
		Usage:       "set mode [strict|helpful|smart]",
		Category:    CategorySystem,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			switch {
			case len(inv.Args) == 0:
				return fmt.Sprintf("mode=%s\nUsage: set mode [%s]", env.Shell.ParserMode(), strings.Join(ParserModes, "|")), nil
			case inv.Args[0] != "mode":
				return "", failf("set: unknown setting %q", inv.Args[0])
			case len(inv.Args) == 1:
				return "mode=" + env.Shell.ParserMode(), nil
			}
			mode := inv.Args[1]
			if !contains(ParserModes, mode) {
				return "", usage("set mode [" + strings.Join(ParserModes, "|") + "]")
			}
			if err := env.Shell.SetParserMode(mode); err != nil {
				return "", err
			}
			return "Parser mode set to " + mode, nil
		},
	})

	reg.Register(Spec{
		Name:            "theme",
		Description:     "Change theme",
		Usage:           "theme [list | set <name>]",
		Category:        CategorySystem,
		NeedsPermission: true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			if len(inv.Args) == 0 || inv.Args[0] == "list" {
				return "Available themes:\n" + strings.Join(Themes, "\n"), nil
			}
			if inv.Args[0] == "set" && contains(Themes, inv.Arg(1)) {
				if err := env.UI.SetTheme(inv.Args[1]); err != nil {
					return "", failf("theme: %v", err)
				}
				return "Theme set to " + inv.Args[1], nil
			}
			return "", usage("theme [list | set <name>]")
		},
	})

	reg.Register(Spec{
		Name:            "bgset",
		Description:     "Set background",
		Usage:           "bgset [preset|url|none|list]",
		Category:        CategorySystem,
		NeedsPermission: true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			arg := inv.Arg(0)
			switch arg {
			case "":
				return "", usage("bgset [preset|url|none|list]")
			case "list":
				return "Presets: " + strings.Join(PresetNames, ", "), nil
			case "none":
				if err := env.UI.SetBackground("none"); err != nil {
					return "", failf("bgset: %v", err)
				}
				return "Background removed.", nil
			}
			value := arg
			if url, ok := BackgroundPresets[arg]; ok {
				value = url
			}
			if err := env.UI.SetBackground(value); err != nil {
				return "", failf("bgset: %v", err)
			}
			return "Background set to " + arg, nil
		},
	})

	reg.Register(Spec{
		Name:        "neofetch",
		Description: "System info",
		Usage:       "neofetch",
		Category:    CategorySystem,
		Handler: func(context.Context, *Invocation) (string, error) {
			theme := env.UI.Theme()
			if theme == "" {
				theme = "default"
			}
			uptime := env.Now().Sub(env.Started).Truncate(time.Minute)
			lines := []string{
				"       _,met$$$$$gg.          user@minai",
				"    ,g$$$$$$$$$$$$$$$P.       ----------",
				`  ,g$$P"     """Y$$.".        OS: MinAI OS ` + env.Version,
				" ,$$P'              `$$$.     Shell: minai-sh",
				"',$$P       ,ggs.     `$$b:   Terminal: MinAI Terminal",
				fmt.Sprintf("`d$$'     ,$P\"'   .    $$$    Theme: %s", theme),
				fmt.Sprintf(" $$P      d$'     ,    $$P    Uptime: %d minutes", int(uptime.Minutes())),
				" $$:      $$.   -    ,d$$'    Memory: Virtual FS",
				fmt.Sprintf(" $$;      Y$b._   _,d$P'      Host: %s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
				fmt.Sprintf(" Y$$.    `.`\"Y$$$P\"'         Commands: %d", reg.Len()),
				" `$$b      \"-.__",
				"  `Y$$                        Type help for commands",
				"   `Y$$.",
				"     `$$b.",
				"       `Y$$b.",
				"          `\"Y$b._",
				"              `\"\"\"",
			}
			return strings.Join(lines, "\n"), nil
		},
	})
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
