// Package session ties the filesystem, parser, agent and chat together into
// one interactive shell session.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"minai/internal/agent"
	"minai/internal/chat"
	"minai/internal/commands"
	"minai/internal/frecency"
	"minai/internal/llm"
	"minai/internal/shell"
	"minai/internal/store"
	"minai/internal/vfs"
)

// Options wires a session. FS, Store and UI are required.
type Options struct {
	FS     *vfs.FileSystem
	Store  store.Store
	UI     commands.UI
	Client llm.Client
	HTTP   *http.Client
	Logger *zap.Logger
	Now    func() time.Time

	Model         string
	Temperature   float64
	ParserMode    string
	TypoTolerance int // maximum edit distance for suggestions; 0 disables them
	StepDelay     time.Duration
	PingInterval  time.Duration
	Version       string

	// OnParserMode is called after `set mode` changed the parser mode.
	OnParserMode func(mode string)
}

// Session is one user's shell: run mode, input history, frecency and the
// pending agent confirmation.
type Session struct {
	opts    Options
	fs      *vfs.FileSystem
	ui      commands.UI
	reg     *commands.Registry
	parser  *shell.Parser
	agent   *agent.Agent
	chat    *chat.Assistant
	tracker *frecency.Tracker
	history store.HistoryStore
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	mode    string
	lines   []string
	pending chan string
	running int
	changed chan struct{}
}

// New builds a session and registers every command against it.
func New(opts Options) (*Session, error) {
	if opts.FS == nil || opts.Store == nil || opts.UI == nil {
		return nil, errors.New("session: FS, Store and UI are required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		opts:    opts,
		fs:      opts.FS,
		ui:      opts.UI,
		reg:     commands.NewRegistry(),
		history: store.HistoryFor(opts.Store),
		logger:  opts.Logger.Named("session"),
		mode:    commands.ModeShell,
		changed: make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	tracker, err := frecency.New(store.VisitsFor(opts.Store), frecency.WithClock(opts.Now), frecency.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}
	s.tracker = tracker

	past, err := s.history.History(0)
	if err != nil {
		s.logger.Warn("load history", zap.Error(err))
	}
	s.lines = past

	commands.RegisterAll(s.reg, commands.Env{
		FS:           opts.FS,
		UI:           opts.UI,
		Shell:        s,
		HTTP:         opts.HTTP,
		Logger:       opts.Logger.Named("commands"),
		Now:          opts.Now,
		PingInterval: opts.PingInterval,
		Version:      opts.Version,
	})
	if _, err := commands.LoadAliases(s.reg, opts.FS); err != nil {
		s.logger.Warn("load aliases", zap.Error(err))
	}

	popts := []shell.Option{shell.WithLogger(opts.Logger.Named("parser")), shell.WithTolerance(opts.TypoTolerance)}
	if opts.ParserMode != "" {
		popts = append(popts, shell.WithMode(opts.ParserMode))
	}
	s.parser = shell.New(s.reg, opts.FS, popts...)

	mgr, err := chat.NewManager(opts.Store, chat.WithClock(opts.Now), chat.WithLogger(opts.Logger))
	if err != nil {
		return nil, err
	}
	s.chat = chat.NewAssistant(opts.Client, mgr, opts.FS, chat.Options{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		Logger:      opts.Logger.Named("chat"),
	})
	s.agent = agent.New(opts.Client, s.parser, s.reg, opts.FS, opts.UI, s.awaitConfirmation, agent.Options{
		Model:       opts.Model,
		Temperature: opts.Temperature,
		StepDelay:   opts.StepDelay,
		Logger:      opts.Logger.Named("agent"),
	})
	return s, nil
}

func (s *Session) Registry() *commands.Registry { return s.reg }
func (s *Session) Parser() *shell.Parser        { return s.parser }
func (s *Session) Agent() *agent.Agent          { return s.agent }
func (s *Session) Tracker() *frecency.Tracker   { return s.tracker }
func (s *Session) FS() *vfs.FileSystem          { return s.fs }

// SetClient swaps the LLM client used by the agent and chat.
func (s *Session) SetClient(c llm.Client) {
	s.agent.SetClient(c)
	s.chat.SetClient(c)
}

// ApplySettings pushes reloaded parser settings into the running session.
func (s *Session) ApplySettings(parserMode string, tolerance int) {
	if err := s.parser.SetMode(parserMode); err != nil {
		s.logger.Warn("ignore parser mode", zap.String("mode", parserMode), zap.Error(err))
	}
	s.parser.SetTolerance(tolerance)
}

// Mode returns the run mode: shell, agent or chat.
func (s *Session) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// AwaitingConfirmation reports whether the next line answers an agent plan.
func (s *Session) AwaitingConfirmation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

// Prompt renders the prompt for the current mode and directory.
func (s *Session) Prompt() string {
	if s.AwaitingConfirmation() {
		return "confirm (yes/no)> "
	}
	dir := DisplayPath(s.fs.Pwd())
	switch s.Mode() {
	case commands.ModeAgent:
		return "ai@minai:" + dir + "> "
	case commands.ModeChat:
		return "chat> "
	default:
		return "user@minai:" + dir + "$ "
	}
}

// DisplayPath abbreviates /home to ~.
func DisplayPath(p string) string {
	switch {
	case p == "/home":
		return "~"
	case strings.HasPrefix(p, "/home/"):
		return "~" + strings.TrimPrefix(p, "/home")
	default:
		return p
	}
}

// SwitchMode changes the run mode and returns the banner to show.
func (s *Session) SwitchMode(mode string) string {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
	s.logger.Debug("mode switched", zap.String("mode", mode))
	switch mode {
	case commands.ModeAgent:
		return "Switched to Agent Mode. Describe what you want done; type 'exit' to return."
	case commands.ModeChat:
		return "Entered Chat Mode. Type 'exit' to return to the shell."
	default:
		return "Switched to Command Mode."
	}
}

func (s *Session) ParserMode() string { return s.parser.Mode() }

func (s *Session) SetParserMode(mode string) error {
	if err := s.parser.SetMode(mode); err != nil {
		return err
	}
	if s.opts.OnParserMode != nil {
		s.opts.OnParserMode(mode)
	}
	return nil
}

// History returns every submitted line, oldest first.
func (s *Session) History() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Ask sends one chat question.
func (s *Session) Ask(ctx context.Context, question string) (string, error) {
	return s.chat.Ask(ctx, question)
}

func (s *Session) record(line string) {
	s.mu.Lock()
	s.lines = append(s.lines, line)
	s.mu.Unlock()
	if err := s.history.AppendHistory(line); err != nil {
		s.logger.Warn("persist history", zap.Error(err))
	}
}

// HandleLine processes one submitted line. Agent requests run in the
// background so the next line can answer their confirmation; Wait blocks
// until they finish.
func (s *Session) HandleLine(ctx context.Context, line string) {
	line = strings.TrimSpace(line)

	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	if pending != nil {
		s.ui.Print(line, commands.KindUser)
		pending <- line
		return
	}
	if line == "" {
		return
	}
	s.record(line)

	switch s.Mode() {
	case commands.ModeChat:
		if line == "exit" || line == "command" || line == "/exit" {
			s.ui.Print(s.SwitchMode(commands.ModeShell), commands.KindSystem)
			return
		}
		s.askChat(ctx, line)
	case commands.ModeAgent:
		if line == "exit" || line == "sh" || line == "/exit" {
			s.ui.Print(s.SwitchMode(commands.ModeShell), commands.KindSystem)
			return
		}
		if s.isCommand(line) {
			s.runCommand(ctx, line)
			return
		}
		s.startAgent(line)
	default:
		s.runCommand(ctx, line)
	}
}

// isCommand reports whether an agent-mode line should bypass the agent.
func (s *Session) isCommand(line string) bool {
	if strings.HasPrefix(line, "/") {
		return true
	}
	name, _, _ := strings.Cut(line, " ")
	if s.reg.Has(name) {
		return true
	}
	_, ok := s.reg.GetAlias(name)
	return ok
}

func (s *Session) runCommand(ctx context.Context, line string) {
	before := s.fs.Pwd()
	out, err := s.parser.Parse(ctx, line)
	if err != nil {
		s.logger.Warn("command failed", zap.String("line", line), zap.Error(err))
	}
	if after := s.fs.Pwd(); after != before {
		if err := s.tracker.Visit(after); err != nil {
			s.logger.Warn("record visit", zap.Error(err))
		}
	}

	switch out.Kind {
	case shell.KindOutput:
		kind := commands.KindOutput
		if out.Markdown {
			kind = commands.KindMarkdown
		}
		s.ui.Print(out.Text, kind)
	case shell.KindSystem:
		s.ui.Print(out.Text, commands.KindSystem)
	case shell.KindError:
		s.ui.Print(out.Text, commands.KindError)
	case shell.KindChat:
		s.askChat(ctx, out.Text)
	}
}

func (s *Session) askChat(ctx context.Context, question string) {
	answer, err := s.chat.Ask(ctx, question)
	if err != nil {
		s.ui.Print("AI Error: "+err.Error(), commands.KindError)
		return
	}
	s.ui.Print(answer, commands.KindAI)
}

func (s *Session) startAgent(request string) {
	if s.agent.State() != agent.Idle {
		s.ui.Print("Agent is busy with another request.", commands.KindError)
		return
	}
	s.mu.Lock()
	s.running++
	s.mu.Unlock()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.running--
			s.notifyLocked()
			s.mu.Unlock()
		}()
		if _, err := s.agent.Handle(s.ctx, request); err != nil {
			if errors.Is(err, agent.ErrBusy) {
				s.ui.Print("Agent is busy with another request.", commands.KindError)
				return
			}
			if errors.Is(err, context.Canceled) {
				return
			}
			s.ui.Print("AI Error: "+err.Error(), commands.KindError)
		}
	}()
}

// RunAgent runs one agent request synchronously, e.g. from the command line.
func (s *Session) RunAgent(ctx context.Context, request string) (agent.Result, error) {
	return s.agent.Handle(ctx, request)
}

// awaitConfirmation parks the agent until HandleLine delivers the next line.
func (s *Session) awaitConfirmation(ctx context.Context, _ agent.Plan) (string, error) {
	ch := make(chan string, 1)
	s.mu.Lock()
	s.pending = ch
	s.notifyLocked()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		if s.pending == ch {
			s.pending = nil
		}
		s.mu.Unlock()
	}()

	select {
	case reply := <-ch:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// Settle blocks until no agent request is running or one is waiting for a
// confirmation, so line-by-line input stays in step with the agent.
func (s *Session) Settle(ctx context.Context) {
	for {
		s.mu.Lock()
		if s.running == 0 || s.pending != nil {
			s.mu.Unlock()
			return
		}
		ch := s.changed
		s.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

// Wait blocks until background agent requests finish.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels background work and waits for it.
func (s *Session) Close() {
	s.cancel()
	s.wg.Wait()
}
