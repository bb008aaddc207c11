package terminal

import (
	"sort"
	"strings"

	prompt "github.com/c-bata/go-prompt"

	"minai/internal/commands"
	"minai/internal/frecency"
	"minai/internal/vfs"
)

// Completer suggests command names for the first word, virtual paths for
// later words, and frecent directories for cd.
type Completer struct {
	reg     *commands.Registry
	fs      *vfs.FileSystem
	tracker *frecency.Tracker
	limit   int
}

// NewCompleter builds a completer; tracker may be nil.
func NewCompleter(reg *commands.Registry, fs *vfs.FileSystem, tracker *frecency.Tracker) *Completer {
	return &Completer{reg: reg, fs: fs, tracker: tracker, limit: 8}
}

// Complete is the go-prompt completion callback.
func (c *Completer) Complete(doc prompt.Document) []prompt.Suggest {
	return c.suggest(doc.TextBeforeCursor())
}

func (c *Completer) suggest(before string) []prompt.Suggest {
	trimmed := strings.TrimLeft(before, " \t")
	if trimmed == "" {
		return nil
	}
	fields := strings.Fields(trimmed)
	atNewWord := strings.HasSuffix(trimmed, " ")
	if len(fields) == 1 && !atNewWord {
		return c.commandSuggestions(fields[0])
	}

	word := ""
	if !atNewWord {
		word = fields[len(fields)-1]
	}
	if strings.HasPrefix(word, "-") {
		return nil
	}
	if fields[0] == "cd" {
		return c.directorySuggestions(word)
	}
	return c.pathSuggestions(word, false)
}

func (c *Completer) commandSuggestions(word string) []prompt.Suggest {
	var out []prompt.Suggest
	for _, name := range c.reg.Names() {
		if !strings.HasPrefix(name, word) {
			continue
		}
		spec, _ := c.reg.Get(name)
		out = append(out, prompt.Suggest{Text: name, Description: spec.Description})
	}
	for _, a := range c.reg.Aliases() {
		if strings.HasPrefix(a.Name, word) && !c.reg.Has(a.Name) {
			out = append(out, prompt.Suggest{Text: a.Name, Description: "alias for " + a.Expansion})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Text < out[j].Text })
	return out
}

// pathSuggestions lists the directory named by word's prefix and keeps the
// entries matching its last segment.
func (c *Completer) pathSuggestions(word string, dirsOnly bool) []prompt.Suggest {
	dir, base := "", word
	if i := strings.LastIndex(word, "/"); i >= 0 {
		dir, base = word[:i+1], word[i+1:]
	}
	lookup := strings.TrimSuffix(dir, "/")
	if dir == "/" {
		lookup = "/"
	}
	entries, err := c.fs.List(lookup)
	if err != nil {
		return nil
	}
	var out []prompt.Suggest
	for _, e := range entries {
		if dirsOnly && !e.Dir {
			continue
		}
		if !strings.HasPrefix(e.Name, base) {
			continue
		}
		if strings.HasPrefix(e.Name, ".") && !strings.HasPrefix(base, ".") {
			continue
		}
		text, desc := dir+e.Name, "file"
		if e.Dir {
			text, desc = text+"/", "directory"
		}
		out = append(out, prompt.Suggest{Text: text, Description: desc})
	}
	return out
}

func (c *Completer) directorySuggestions(word string) []prompt.Suggest {
	out := c.pathSuggestions(word, true)
	if c.tracker == nil {
		return out
	}
	seen := make(map[string]bool, len(out))
	for _, s := range out {
		seen[s.Text] = true
	}
	for _, p := range c.tracker.Suggest(word, c.limit) {
		if seen[p] || seen[p+"/"] {
			continue
		}
		out = append(out, prompt.Suggest{Text: p, Description: "frequent"})
	}
	return out
}
