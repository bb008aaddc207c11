// Package terminal is the interactive front end: it renders command output,
// completes input and hosts the editor, upload and settings flows.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"go.uber.org/zap"

	"minai/internal/commands"
)

// palette holds the ANSI SGR parameters used for each output kind.
type palette struct {
	output, system, errs, ai, user string
	glamour                        string
}

var palettes = map[string]palette{
	"cyberpunk":       {output: "38;5;51", system: "38;5;201", errs: "38;5;197", ai: "38;5;226", user: "1;38;5;51", glamour: "dark"},
	"ubuntu":          {output: "37", system: "38;5;208", errs: "31", ai: "35", user: "1;32", glamour: "dark"},
	"hacker":          {output: "32", system: "1;32", errs: "1;31", ai: "92", user: "1;92", glamour: "dark"},
	"retro":           {output: "38;5;214", system: "38;5;178", errs: "38;5;160", ai: "38;5;221", user: "1;38;5;214", glamour: "dark"},
	"dracula":         {output: "38;5;255", system: "38;5;141", errs: "38;5;203", ai: "38;5;212", user: "1;38;5;84", glamour: "dracula"},
	"monokai":         {output: "38;5;231", system: "38;5;81", errs: "38;5;197", ai: "38;5;148", user: "1;38;5;208", glamour: "dark"},
	"nord":            {output: "38;5;253", system: "38;5;110", errs: "38;5;167", ai: "38;5;150", user: "1;38;5;109", glamour: "dark"},
	"solarized-dark":  {output: "38;5;244", system: "38;5;33", errs: "38;5;160", ai: "38;5;136", user: "1;38;5;37", glamour: "dark"},
	"solarized-light": {output: "38;5;240", system: "38;5;33", errs: "38;5;160", ai: "38;5;136", user: "1;38;5;37", glamour: "light"},
}

const defaultTheme = "cyberpunk"

// Settings receives theme and background changes so they survive restarts.
type Settings func(theme, background string) error

// Options configures a UI. Zero values fall back to the process's stdio.
type Options struct {
	In         io.Reader
	Out        io.Writer
	Color      bool
	Theme      string
	Background string
	// Editor is the command used by OpenEditor; $VISUAL, $EDITOR, then vi.
	Editor      string
	DownloadDir string
	// Ask reads one answer from the user; the default reads a line from In.
	Ask func(question string) (string, error)
	// Configure runs the interactive settings flow behind `config`.
	Configure func(ctx context.Context, in io.Reader, out io.Writer) error
	Persist   Settings
	Logger    *zap.Logger
}

// UI implements commands.UI on a terminal.
type UI struct {
	mu         sync.Mutex
	in         io.Reader
	out        io.Writer
	color      bool
	theme      string
	background string
	render     *glamour.TermRenderer
	editor     string
	dlDir      string
	ask        func(string) (string, error)
	configure  func(context.Context, io.Reader, io.Writer) error
	persist    Settings
	logger     *zap.Logger
}

var _ commands.UI = (*UI)(nil)

// NewUI builds a UI. An unknown theme falls back to cyberpunk.
func NewUI(opts Options) *UI {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if _, ok := palettes[opts.Theme]; !ok {
		opts.Theme = defaultTheme
	}
	if opts.Editor == "" {
		opts.Editor = editorFromEnv(os.Getenv)
	}
	if opts.DownloadDir == "" {
		opts.DownloadDir = "."
	}
	u := &UI{
		in:         opts.In,
		out:        opts.Out,
		color:      opts.Color,
		theme:      opts.Theme,
		background: opts.Background,
		editor:     opts.Editor,
		dlDir:      opts.DownloadDir,
		ask:        opts.Ask,
		configure:  opts.Configure,
		persist:    opts.Persist,
		logger:     opts.Logger.Named("terminal"),
	}
	if u.ask == nil {
		u.ask = u.readAnswer
	}
	u.render = u.newRenderer(u.theme)
	return u
}

func editorFromEnv(getenv func(string) string) string {
	for _, key := range []string{"VISUAL", "EDITOR"} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return "vi"
}

func (u *UI) newRenderer(theme string) *glamour.TermRenderer {
	style := "notty"
	if u.color {
		style = palettes[theme].glamour
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(0),
	)
	if err != nil {
		u.logger.Warn("markdown renderer unavailable", zap.Error(err))
		return nil
	}
	return r
}

// Print writes text styled for kind. Markdown and AI replies go through the
// markdown renderer.
func (u *UI) Print(text string, kind commands.OutputKind) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if kind == commands.KindMarkdown || kind == commands.KindAI {
		if u.render != nil {
			if rendered, err := u.render.Render(text); err == nil {
				text = strings.Trim(rendered, "\n")
			} else {
				u.logger.Debug("render markdown", zap.Error(err))
			}
		}
		if kind == commands.KindMarkdown {
			fmt.Fprintln(u.out, text)
			return
		}
	}
	fmt.Fprintln(u.out, u.style(text, kind))
}

func (u *UI) style(text string, kind commands.OutputKind) string {
	if !u.color || text == "" {
		return text
	}
	p := palettes[u.theme]
	var code string
	switch kind {
	case commands.KindSystem:
		code = p.system
	case commands.KindError:
		code = p.errs
	case commands.KindAI:
		code = p.ai
	case commands.KindUser:
		code = p.user
	default:
		code = p.output
	}
	return "\x1b[" + code + "m" + text + "\x1b[0m"
}

// Clear wipes the screen when output is a colour terminal.
func (u *UI) Clear() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.color {
		fmt.Fprint(u.out, "\x1b[H\x1b[2J")
	}
}

// OpenEditor runs the editor on a temporary copy of content. The edit counts
// as saved when the editor exits cleanly and the file changed.
func (u *UI) OpenEditor(ctx context.Context, name, content string) (string, bool, error) {
	f, err := os.CreateTemp("", "minai-*-"+filepath.Base(name))
	if err != nil {
		return "", false, fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer os.Remove(tmp)
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return "", false, fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", false, fmt.Errorf("close temp file: %w", err)
	}

	fields := strings.Fields(u.editor)
	if len(fields) == 0 {
		fields = []string{"vi"}
	}
	cmd := exec.CommandContext(ctx, fields[0], append(fields[1:], tmp)...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			u.logger.Info("editor exited non-zero", zap.Int("code", exitErr.ExitCode()))
			return content, false, nil
		}
		return "", false, fmt.Errorf("run %s: %w", fields[0], err)
	}

	edited, err := os.ReadFile(tmp)
	if err != nil {
		return "", false, fmt.Errorf("read temp file: %w", err)
	}
	return string(edited), string(edited) != content, nil
}

// PickUpload asks for a host path and returns its base name and bytes. An
// empty answer cancels.
func (u *UI) PickUpload(_ context.Context) (string, []byte, error) {
	answer, err := u.ask("Host file to upload (empty to cancel): ")
	if err != nil {
		return "", nil, err
	}
	p := strings.TrimSpace(answer)
	if p == "" {
		return "", nil, nil
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[2:])
		}
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return filepath.Base(p), nil, err
	}
	return filepath.Base(p), data, nil
}

// SaveDownload writes content into the download directory and returns the
// host path.
func (u *UI) SaveDownload(name, content string) (string, error) {
	dest := filepath.Join(u.dlDir, filepath.Base(name))
	if err := os.WriteFile(dest, []byte(content), 0o644); err != nil {
		return "", err
	}
	if abs, err := filepath.Abs(dest); err == nil {
		dest = abs
	}
	return dest, nil
}

// OpenSettings runs the configured settings flow on the UI's streams.
func (u *UI) OpenSettings(ctx context.Context) error {
	if u.configure == nil {
		return errors.New("settings are not available")
	}
	return u.configure(ctx, u.in, u.out)
}

func (u *UI) Theme() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.theme
}

// SetTheme switches palette and markdown style and persists the choice.
func (u *UI) SetTheme(name string) error {
	if _, ok := palettes[name]; !ok {
		return fmt.Errorf("unknown theme %q", name)
	}
	u.mu.Lock()
	u.theme = name
	u.render = u.newRenderer(name)
	bg := u.background
	u.mu.Unlock()
	return u.save(name, bg)
}

// SetBackground records the background; a terminal cannot show it, so it is
// only persisted. "none" clears it.
func (u *UI) SetBackground(value string) error {
	if value == "none" {
		value = ""
	}
	u.mu.Lock()
	u.background = value
	theme := u.theme
	u.mu.Unlock()
	return u.save(theme, value)
}

// Background returns the persisted background value.
func (u *UI) Background() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.background
}

func (u *UI) save(theme, background string) error {
	if u.persist == nil {
		return nil
	}
	if err := u.persist(theme, background); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

// Apply adopts settings reloaded from disk without persisting them again.
func (u *UI) Apply(theme, background string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := palettes[theme]; ok && theme != u.theme {
		u.theme = theme
		u.render = u.newRenderer(theme)
	}
	u.background = background
}

func (u *UI) readAnswer(question string) (string, error) {
	u.mu.Lock()
	fmt.Fprint(u.out, question)
	u.mu.Unlock()
	return readLine(u.in)
}

// readLine reads up to a newline one byte at a time so no input is buffered
// away from later readers of the same stream.
func readLine(r io.Reader) (string, error) {
	var b strings.Builder
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if buf[0] == '\n' {
				return strings.TrimSuffix(b.String(), "\r"), nil
			}
			b.WriteByte(buf[0])
		}
		if err != nil {
			if errors.Is(err, io.EOF) && b.Len() > 0 {
				return b.String(), nil
			}
			return b.String(), err
		}
	}
}
