package commands

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"minai/internal/vfs"
)

const defaultLineCount = 10

// RegisterContent installs cat, echo, head, tail, wc, grep and edit.
func RegisterContent(reg *Registry, env Env) {
	fs := env.FS

	reg.Register(Spec{
		Name:        "cat",
		Description: "Display file contents",
		Usage:       "cat <file>...",
		Category:    CategoryContent,
		ExpandGlobs: true,
		Stdin:       true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			files := inv.Operands()
			if len(files) == 0 {
				if inv.Piped {
					return inv.Stdin, nil
				}
				return "", usage("cat <file>...")
			}
			var parts []string
			var errs []error
			for _, f := range files {
				content, err := fs.Cat(f)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				parts = append(parts, content)
			}
			return strings.Join(parts, "\n"), errors.Join(errs...)
		},
	})

	reg.Register(Spec{
		Name:        "echo",
		Description: "Display text",
		Usage:       "echo <text>",
		Category:    CategoryContent,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			return strings.Join(inv.Args, " "), nil
		},
	})

	reg.Register(Spec{
		Name:        "head",
		Description: "Output the first lines of a file",
		Usage:       "head [-n N] <file>",
		Category:    CategoryContent,
		ExpandGlobs: true,
		Stdin:       true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			n, content, err := lineWindowInput(fs, inv, "head [-n N] <file>")
			if err != nil {
				return "", err
			}
			lines := strings.Split(content, "\n")
			if n < len(lines) {
				lines = lines[:n]
			}
			return strings.Join(lines, "\n"), nil
		},
	})

	reg.Register(Spec{
		Name:        "tail",
		Description: "Output the last lines of a file",
		Usage:       "tail [-n N] <file>",
		Category:    CategoryContent,
		ExpandGlobs: true,
		Stdin:       true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			n, content, err := lineWindowInput(fs, inv, "tail [-n N] <file>")
			if err != nil {
				return "", err
			}
			lines := strings.Split(content, "\n")
			if n < len(lines) {
				lines = lines[len(lines)-n:]
			}
			return strings.Join(lines, "\n"), nil
		},
	})

	reg.Register(Spec{
		Name:        "wc",
		Description: "Word, line, character count",
		Usage:       "wc [-lwc] <file>",
		Category:    CategoryContent,
		ExpandGlobs: true,
		Stdin:       true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			content, label, err := singleInput(fs, inv, "wc [-lwc] <file>")
			if err != nil {
				return "", err
			}
			lines := strings.Count(content, "\n") + 1
			words := len(strings.Fields(content))
			chars := len([]rune(content))
			suffix := ""
			if label != "" {
				suffix = " " + label
			}
			switch {
			case inv.Flags.Has('l'):
				return fmt.Sprintf("%d%s", lines, suffix), nil
			case inv.Flags.Has('w'):
				return fmt.Sprintf("%d%s", words, suffix), nil
			case inv.Flags.Has('c'):
				return fmt.Sprintf("%d%s", chars, suffix), nil
			}
			return fmt.Sprintf("%d %d %d%s", lines, words, chars, suffix), nil
		},
	})

	reg.Register(Spec{
		Name:        "grep",
		Description: "Search for a pattern in files",
		Usage:       "grep [-ivnc] <pattern> [file...]",
		Category:    CategoryContent,
		ExpandGlobs: true,
		Stdin:       true,
		Handler: func(_ context.Context, inv *Invocation) (string, error) {
			operands := inv.Operands()
			if len(operands) == 0 {
				return "", usage("grep [-ivnc] <pattern> [file...]")
			}
			expr := operands[0]
			if inv.Flags.Has('i') {
				expr = "(?i)" + expr
			}
			re, err := regexp.Compile(expr)
			if err != nil {
				return "", failf("grep: invalid pattern: %s", operands[0])
			}

			type source struct{ label, content string }
			var sources []source
			var errs []error
			files := operands[1:]
			if len(files) == 0 && inv.Piped {
				sources = append(sources, source{content: inv.Stdin})
			}
			if len(files) == 0 && !inv.Piped {
				return "", usage("grep [-ivnc] <pattern> [file...]")
			}
			for _, f := range files {
				content, err := fs.Cat(f)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				sources = append(sources, source{label: f, content: content})
			}

			var out []string
			for _, src := range sources {
				count := 0
				for i, line := range strings.Split(src.content, "\n") {
					if re.MatchString(line) == inv.Flags.Has('v') {
						continue
					}
					count++
					if inv.Flags.Has('c') {
						continue
					}
					if inv.Flags.Has('n') {
						line = strconv.Itoa(i+1) + ":" + line
					}
					if len(files) > 1 {
						line = src.label + ":" + line
					}
					out = append(out, line)
				}
				if inv.Flags.Has('c') {
					if len(files) > 1 {
						out = append(out, fmt.Sprintf("%s:%d", src.label, count))
					} else {
						out = append(out, strconv.Itoa(count))
					}
				}
			}
			return strings.Join(out, "\n"), errors.Join(errs...)
		},
	})

	reg.Register(Spec{
		Name:            "edit",
		Description:     "Open a file in the text editor",
		Usage:           "edit <file>",
		Category:        CategoryContent,
		NeedsPermission: true,
		Handler: func(ctx context.Context, inv *Invocation) (string, error) {
			name := inv.Arg(0)
			if name == "" {
				return "", usage("edit <file>")
			}
			content, err := fs.Cat(name)
			if err != nil && !vfs.IsKind(err, vfs.NotFound) {
				return "", err
			}
			edited, saved, err := env.UI.OpenEditor(ctx, name, content)
			if err != nil {
				return "", failf("edit: %v", err)
			}
			if !saved {
				return "Edit discarded.", nil
			}
			if err := fs.Write(name, edited, false); err != nil {
				return "", err
			}
			return fmt.Sprintf("Saved %s", name), nil
		},
	})
}

// singleInput returns the content a one-file command works on: the named file,
// or piped output when no operand was typed.
func singleInput(fs *vfs.FileSystem, inv *Invocation, spec string) (content, label string, err error) {
	operands := inv.Operands()
	if len(operands) == 0 {
		if inv.Piped {
			return inv.Stdin, "", nil
		}
		return "", "", usage(spec)
	}
	content, err = fs.Cat(operands[0])
	return content, operands[0], err
}

// lineWindowInput parses the -n count (also accepted as a bare -N) for head
// and tail and returns the content to window.
func lineWindowInput(fs *vfs.FileSystem, inv *Invocation, spec string) (int, string, error) {
	n := defaultLineCount
	operands := inv.Operands()
	if len(operands) > 0 {
		first := operands[0]
		if v, err := strconv.Atoi(strings.TrimPrefix(first, "-")); err == nil && (inv.Flags.Has('n') || strings.HasPrefix(first, "-")) {
			n = v
			operands = operands[1:]
		}
	}
	if n < 0 {
		n = -n
	}
	window := *inv
	window.Args = operands
	window.Explicit = len(operands)
	content, _, err := singleInput(fs, &window, spec)
	return n, content, err
}
