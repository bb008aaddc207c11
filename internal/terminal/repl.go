package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	prompt "github.com/c-bata/go-prompt"
	"go.uber.org/zap"
	"golang.org/x/term"
)

// Shell is the session surface the REPL drives.
type Shell interface {
	HandleLine(ctx context.Context, line string)
	Prompt() string
	History() []string
	// Settle returns once background work is done or waiting for input.
	Settle(ctx context.Context)
}

// REPL reads lines and hands them to a Shell until the input ends or the
// user presses Ctrl+C twice.
type REPL struct {
	shell     Shell
	completer *Completer
	in        io.Reader
	out       io.Writer
	tty       bool
	banner    string
	logger    *zap.Logger
}

// REPLOption configures a REPL.
type REPLOption func(*REPL)

// WithInput replaces stdin. A non-terminal input selects the line reader.
func WithInput(r io.Reader) REPLOption {
	return func(p *REPL) {
		p.in = r
		p.tty = false
	}
}

func WithOutput(w io.Writer) REPLOption {
	return func(p *REPL) { p.out = w }
}

func WithBanner(text string) REPLOption {
	return func(p *REPL) { p.banner = text }
}

func WithLogger(l *zap.Logger) REPLOption {
	return func(p *REPL) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewREPL builds a REPL on the process's stdio.
func NewREPL(shell Shell, completer *Completer, opts ...REPLOption) *REPL {
	r := &REPL{
		shell:     shell,
		completer: completer,
		in:        os.Stdin,
		out:       os.Stdout,
		tty:       IsTerminal(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsTerminal reports whether stdin and stdout are both terminals.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Ask reads one answer with go-prompt; the UI uses it for questions asked
// while the REPL is running on a terminal.
func Ask(question string) (string, error) {
	return prompt.Input(question, func(prompt.Document) []prompt.Suggest { return nil }), nil
}

// Run blocks until the session ends.
func (r *REPL) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.banner != "" {
		fmt.Fprintln(r.out, r.banner)
	}
	tracker := newInterruptTracker(2 * time.Second)
	if r.tty {
		return r.runPrompt(ctx, cancel, tracker)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.handleInterrupts(ctx, cancel, tracker)
	}()
	defer func() {
		cancel()
		<-done
	}()
	return r.runLines(ctx)
}

type promptExit struct{}

func (r *REPL) runPrompt(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) (err error) {
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		if state, terr := term.GetState(fd); terr == nil {
			defer func() { _ = term.Restore(fd, state) }()
		}
	}

	var exitRequested atomic.Bool
	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(promptExit); ok {
				err = nil
				return
			}
			panic(rec)
		}
	}()
	exit := func() {
		exitRequested.Store(true)
		cancel()
		panic(promptExit{})
	}

	executor := func(in string) {
		if exitRequested.Load() || ctx.Err() != nil {
			return
		}
		r.shell.HandleLine(ctx, in)
	}

	p := prompt.New(
		executor,
		r.completer.Complete,
		prompt.OptionHistory(r.shell.History()),
		prompt.OptionTitle("MinAI"),
		prompt.OptionLivePrefix(func() (string, bool) {
			return r.shell.Prompt(), true
		}),
		prompt.OptionAddKeyBind(
			prompt.KeyBind{
				Key: prompt.ControlC,
				Fn: func(*prompt.Buffer) {
					if tracker.secondPress() {
						fmt.Fprintln(r.out, "\nReceived second Ctrl+C, exiting.")
						exit()
					}
					fmt.Fprintln(r.out, "\n(Press Ctrl+C again within 2s to exit)")
				},
			},
			prompt.KeyBind{
				Key: prompt.ControlD,
				Fn: func(buf *prompt.Buffer) {
					if buf.Text() == "" {
						exit()
					}
				},
			},
		),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool {
			return exitRequested.Load() || ctx.Err() != nil
		}),
	)
	p.Run()
	r.logger.Debug("prompt closed")
	return nil
}

// runLines serves piped or redirected input: one line per command, the
// prompt echoed so transcripts read like a terminal session.
func (r *REPL) runLines(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(r.out, r.shell.Prompt())
		line, err := readLine(r.in)
		if errors.Is(err, io.EOF) {
			r.logger.Debug("input closed")
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
		r.shell.HandleLine(ctx, line)
		r.shell.Settle(ctx)
	}
}

func (r *REPL) handleInterrupts(ctx context.Context, cancel context.CancelFunc, tracker *interruptTracker) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			if tracker.secondPress() {
				fmt.Fprintln(r.out, "\nReceived second Ctrl+C, exiting.")
				cancel()
				return
			}
			fmt.Fprintln(r.out, "\n(Press Ctrl+C again within 2s to exit)")
		}
	}
}

type interruptTracker struct {
	mu     sync.Mutex
	last   time.Time
	window time.Duration
	now    func() time.Time
}

func newInterruptTracker(window time.Duration) *interruptTracker {
	return &interruptTracker{window: window, now: time.Now}
}

func (t *interruptTracker) secondPress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.window {
		t.last = time.Time{}
		return true
	}
	t.last = now
	return false
}
