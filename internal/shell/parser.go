package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"minai/internal/commands"
	"minai/internal/vfs"
)

// Parser modes. Strict never forwards unmatched input to the assistant.
const (
	ModeStrict  = "strict"
	ModeHelpful = "helpful"
	ModeSmart   = "smart"
)

// DefaultTolerance is the largest edit distance offered as a suggestion.
const DefaultTolerance = 2

const maxAliasDepth = 8

// Kind classifies an Outcome.
type Kind int

const (
	KindNone Kind = iota
	KindOutput
	KindError
	KindSystem
	// KindChat carries text to forward to the assistant.
	KindChat
)

func (k Kind) String() string {
	switch k {
	case KindOutput:
		return "output"
	case KindError:
		return "error"
	case KindSystem:
		return "system"
	case KindChat:
		return "chat"
	default:
		return "none"
	}
}

// Outcome is what one input line produced.
type Outcome struct {
	Kind     Kind
	Text     string
	Markdown bool
	// Command is the resolved name of the last stage that ran.
	Command string
}

// HandlerError is a command failure that is not a user error: a bug, an
// unexpected I/O error or a panic inside the handler.
type HandlerError struct {
	Command string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("Error executing %s: %v", e.Command, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Parser turns input lines into command invocations.
type Parser struct {
	reg    *commands.Registry
	fs     *vfs.FileSystem
	logger *zap.Logger

	mu        sync.RWMutex
	mode      string
	tolerance int
}

// Option configures a Parser.
type Option func(*Parser)

func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMode(mode string) Option {
	return func(p *Parser) {
		if validMode(mode) {
			p.mode = mode
		}
	}
}

func WithTolerance(n int) Option {
	return func(p *Parser) {
		if n >= 0 {
			p.tolerance = n
		}
	}
}

// New returns a parser dispatching into reg. fs is used for redirection and
// glob expansion.
func New(reg *commands.Registry, fs *vfs.FileSystem, opts ...Option) *Parser {
	p := &Parser{
		reg:       reg,
		fs:        fs,
		logger:    zap.NewNop(),
		mode:      ModeSmart,
		tolerance: DefaultTolerance,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func validMode(mode string) bool {
	return mode == ModeStrict || mode == ModeHelpful || mode == ModeSmart
}

func (p *Parser) Mode() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

func (p *Parser) SetMode(mode string) error {
	if !validMode(mode) {
		return fmt.Errorf("unknown parser mode %q", mode)
	}
	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
	return nil
}

func (p *Parser) SetTolerance(n int) {
	if n < 0 {
		return
	}
	p.mu.Lock()
	p.tolerance = n
	p.mu.Unlock()
}

// Parse runs one input line. The returned error is non-nil only for a
// *HandlerError or a cancelled context; every user-level failure comes back
// as a KindError outcome.
func (p *Parser) Parse(ctx context.Context, line string) (Outcome, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return Outcome{}, nil
	}
	if text, ok := chatPrefix(trimmed); ok {
		return Outcome{Kind: KindChat, Text: text}, nil
	}

	tokens, err := tokenize(trimmed)
	if err != nil {
		return errorOutcome("syntax error: " + err.Error()), nil
	}
	stages := splitPipeline(tokens)
	for _, stage := range stages {
		if len(stage) == 0 {
			return errorOutcome("syntax error near unexpected token `|'"), nil
		}
	}

	var (
		out   Outcome
		prev  string
		piped bool
	)
	for i, stage := range stages {
		st, res, err := p.prepare(stage, i == 0 && len(stages) == 1, trimmed)
		if err != nil {
			return errorOutcome(err.Error()), nil
		}
		if st == nil {
			return res, nil
		}
		if piped {
			st.inv.Args = append(st.inv.Args, strings.Fields(prev)...)
			if st.spec.Stdin {
				st.inv.Stdin, st.inv.Piped = prev, true
			}
		}
		out, err = p.run(ctx, st)
		if err != nil || out.Kind == KindError {
			return out, err
		}
		prev, piped = out.Text, true
	}
	return out, nil
}

// chatPrefix recognises `@question` and `ask: question`.
func chatPrefix(line string) (string, bool) {
	var text string
	switch {
	case strings.HasPrefix(line, "@"):
		text = line[1:]
	case len(line) > 4 && strings.EqualFold(line[:4], "ask:") && (line[4] == ' ' || line[4] == '\t'):
		text = line[4:]
	default:
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func errorOutcome(msg string) Outcome {
	return Outcome{Kind: KindError, Text: msg}
}

type stage struct {
	spec     commands.Spec
	inv      *commands.Invocation
	redirect string
	append   bool
}

// prepare resolves one pipeline stage. It returns a nil stage with a final
// outcome when the command name does not resolve.
func (p *Parser) prepare(tokens []token, whole bool, line string) (*stage, Outcome, error) {
	st := &stage{}
	var words []token
	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		if t.kind == tokRedirect || t.kind == tokAppend {
			if i+1 >= len(tokens) || tokens[i+1].kind != tokWord {
				return nil, Outcome{}, errors.New("syntax error near unexpected token `newline'")
			}
			st.redirect, st.append = tokens[i+1].text, t.kind == tokAppend
			i++
			continue
		}
		words = append(words, t)
	}
	if len(words) == 0 {
		return nil, Outcome{}, errors.New("syntax error: missing command")
	}

	name, args := p.expandAlias(words[0].text, words[1:])
	if !p.reg.Has(name) {
		if trimmed := strings.TrimPrefix(name, "/"); trimmed != name && trimmed != "" {
			name, args = p.expandAlias(trimmed, args)
		}
	}
	spec, ok := p.reg.Get(name)
	if !ok {
		return nil, p.notFound(name, whole, line), nil
	}

	inv := &commands.Invocation{Name: name, Flags: commands.Flags{}}
	for _, a := range args {
		if isFlag(a) {
			for _, r := range a.text[1:] {
				inv.Flags[r] = true
			}
			continue
		}
		if spec.ExpandGlobs && !a.quoted && vfs.HasGlob(a.text) {
			if matches, err := p.fs.Glob(a.text); err == nil && len(matches) > 0 {
				inv.Args = append(inv.Args, matches...)
				continue
			}
		}
		inv.Args = append(inv.Args, a.text)
	}
	inv.Explicit = len(inv.Args)
	st.spec, st.inv = spec, inv
	return st, Outcome{}, nil
}

// expandAlias substitutes aliases on the command word. Expansion words go
// ahead of the typed arguments.
func (p *Parser) expandAlias(name string, args []token) (string, []token) {
	seen := map[string]bool{}
	for depth := 0; depth < maxAliasDepth; depth++ {
		expansion, ok := p.reg.GetAlias(name)
		if !ok || seen[name] {
			break
		}
		seen[name] = true
		expanded, err := tokenize(expansion)
		if err != nil || len(expanded) == 0 || expanded[0].kind != tokWord {
			break
		}
		var words []token
		for _, t := range expanded[1:] {
			if t.kind == tokWord {
				words = append(words, t)
			}
		}
		name = expanded[0].text
		args = append(words, args...)
	}
	return name, args
}

// isFlag reports whether an unquoted word is a flag cluster. A lone `-` and
// negative numbers stay positional.
func isFlag(t token) bool {
	if t.quoted || len(t.text) < 2 || t.text[0] != '-' {
		return false
	}
	_, err := strconv.ParseFloat(t.text, 64)
	return err != nil
}

func (p *Parser) notFound(name string, whole bool, line string) Outcome {
	p.mu.RLock()
	mode, tolerance := p.mode, p.tolerance
	p.mu.RUnlock()

	if best, dist := closest(name, p.reg.Names()); best != "" && dist <= tolerance {
		return errorOutcome(fmt.Sprintf("Command not found: '%s'. Did you mean '%s'?", name, best))
	}
	if whole && mode != ModeStrict && looksLikeQuestion(line) {
		return Outcome{Kind: KindChat, Text: line}
	}
	return errorOutcome(fmt.Sprintf("Command not found: %s. Type 'help' for available commands.", name))
}

// run invokes the handler, converting panics and unexpected errors into a
// HandlerError and writing redirected output.
func (p *Parser) run(ctx context.Context, st *stage) (out Outcome, err error) {
	name := st.inv.Name
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("command panicked", zap.String("command", name), zap.Any("panic", r))
			herr := &HandlerError{Command: name, Err: fmt.Errorf("%v", r)}
			out, err = errorOutcome(herr.Error()), herr
		}
	}()

	p.logger.Debug("dispatch", zap.String("command", name), zap.Strings("args", st.inv.Args))
	text, runErr := st.spec.Handler(ctx, st.inv)
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(runErr, ctxErr) {
			return errorOutcome(runErr.Error()), runErr
		}
		if !commands.IsUserError(runErr) {
			herr := &HandlerError{Command: name, Err: runErr}
			p.logger.Warn("command failed", zap.String("command", name), zap.Error(runErr))
			return Outcome{Kind: KindError, Text: herr.Error(), Command: name}, herr
		}
		msg := runErr.Error()
		if text != "" {
			msg = text + "\n" + msg
		}
		return Outcome{Kind: KindError, Text: msg, Command: name}, nil
	}

	if st.redirect != "" {
		if err := p.fs.Write(st.redirect, text, st.append); err != nil {
			return Outcome{Kind: KindError, Text: err.Error(), Command: name}, nil
		}
		return Outcome{Kind: KindNone, Command: name}, nil
	}
	if text == "" {
		return Outcome{Kind: KindNone, Command: name}, nil
	}
	return Outcome{Kind: KindOutput, Text: text, Markdown: st.spec.Markdown, Command: name}, nil
}
