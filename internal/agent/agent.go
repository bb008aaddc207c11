package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"minai/internal/commands"
	"minai/internal/llm"
	"minai/internal/prompts"
	"minai/internal/shell"
	"minai/internal/vfs"
)

// State is where the agent is in a request.
type State int

const (
	Idle State = iota
	Thinking
	AwaitingPermission
	Executing
)

func (s State) String() string {
	switch s {
	case Thinking:
		return "thinking"
	case AwaitingPermission:
		return "awaiting_permission"
	case Executing:
		return "executing"
	default:
		return "idle"
	}
}

// ErrBusy rejects a request while another one is in flight.
var ErrBusy = errors.New("agent is busy with another request")

// DefaultStepDelay separates planned commands.
const DefaultStepDelay = 200 * time.Millisecond

// Runner executes one command line. *shell.Parser implements it.
type Runner interface {
	Parse(ctx context.Context, line string) (shell.Outcome, error)
}

// Printer receives progress and command output.
type Printer interface {
	Print(text string, kind commands.OutputKind)
}

// Confirmer asks the user to approve plan. It blocks until an answer
// arrives and returns the raw reply.
type Confirmer func(ctx context.Context, plan Plan) (string, error)

// Options tunes an Agent.
type Options struct {
	Model       string
	Temperature float64
	StepDelay   time.Duration
	MaxRetries  int
	// RetryDelay is the first backoff interval; it doubles up to 8s.
	RetryDelay time.Duration
	Logger      *zap.Logger
	// NewID generates request ids; uuid by default.
	NewID func() string
}

// Agent turns natural-language requests into command plans and runs them.
type Agent struct {
	runner  Runner
	reg     *commands.Registry
	fs      *vfs.FileSystem
	out     Printer
	confirm Confirmer
	opts    Options
	logger  *zap.Logger

	clientMu sync.RWMutex
	client   llm.Client

	mu    sync.Mutex
	state State
}

// New builds an agent. client may be nil until credentials are configured.
func New(client llm.Client, runner Runner, reg *commands.Registry, fs *vfs.FileSystem, out Printer, confirm Confirmer, opts Options) *Agent {
	if opts.StepDelay < 0 {
		opts.StepDelay = 0
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		client:  client,
		runner:  runner,
		reg:     reg,
		fs:      fs,
		out:     out,
		confirm: confirm,
		opts:    opts,
		logger:  logger,
	}
}

// SetClient swaps the LLM client, e.g. after the configuration changed.
func (a *Agent) SetClient(c llm.Client) {
	a.clientMu.Lock()
	a.client = c
	a.clientMu.Unlock()
}

func (a *Agent) currentClient() llm.Client {
	a.clientMu.RLock()
	defer a.clientMu.RUnlock()
	return a.client
}

// State reports the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Agent) setState(id string, s State) {
	a.mu.Lock()
	prev := a.state
	a.state = s
	a.mu.Unlock()
	a.logger.Debug("agent state", zap.String("request_id", id), zap.Stringer("from", prev), zap.Stringer("to", s))
}

// Result summarises a finished request.
type Result struct {
	ID        string
	Plan      Plan
	Cancelled bool
	// Executed counts planned commands that ran.
	Executed int
	// Failed is the handler error that stopped execution, if any.
	Failed error
}

// Handle runs one request through plan, confirmation and execution. A
// request made while another is in flight fails with ErrBusy.
func (a *Agent) Handle(ctx context.Context, request string) (Result, error) {
	a.mu.Lock()
	if a.state != Idle {
		a.mu.Unlock()
		return Result{}, ErrBusy
	}
	a.state = Thinking
	a.mu.Unlock()

	res := Result{ID: a.opts.NewID()}
	log := a.logger.With(zap.String("request_id", res.ID))
	defer a.setState(res.ID, Idle)

	client := a.currentClient()
	if client == nil {
		return res, llm.ErrNoProvider
	}

	a.out.Print("Agent thinking...", commands.KindSystem)
	system, err := a.systemPrompt()
	if err != nil {
		return res, err
	}
	req := llm.ChatRequest{
		Model:       a.opts.Model,
		Temperature: a.opts.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: system},
			{Role: llm.RoleUser, Content: request},
		},
	}
	log.Info("agent request", zap.Int("prompt_bytes", len(system)), zap.Int("request_bytes", len(request)))

	resp, err := a.callWithRetry(ctx, client, req, log)
	if err != nil {
		return res, err
	}
	content, err := resp.Content()
	if err != nil {
		return res, err
	}
	plan, err := ParsePlan(content)
	if err != nil {
		log.Warn("unparseable plan", zap.Error(err))
		return res, err
	}
	res.Plan = plan
	a.out.Print("Plan: "+plan.Plan, commands.KindSystem)
	if len(plan.Commands) == 0 {
		return res, nil
	}

	if plan.NeedsPermission || a.requiresPermission(plan.Commands) {
		a.setState(res.ID, AwaitingPermission)
		lines := make([]string, len(plan.Commands))
		for i, c := range plan.Commands {
			lines[i] = " > " + c
		}
		a.out.Print("Commands:\n"+strings.Join(lines, "\n")+"\nType 'yes' to execute:", commands.KindSystem)
		reply, err := a.confirm(ctx, plan)
		if err != nil {
			return res, err
		}
		if !isConfirmation(reply) {
			log.Info("plan cancelled")
			a.out.Print("Cancelled.", commands.KindSystem)
			res.Cancelled = true
			return res, nil
		}
	} else {
		a.out.Print("Executing: "+strings.Join(plan.Commands, ", "), commands.KindSystem)
	}

	a.setState(res.ID, Executing)
	for i, line := range plan.Commands {
		if i > 0 && a.opts.StepDelay > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(a.opts.StepDelay):
			}
		}
		a.out.Print("$ "+line, commands.KindUser)
		out, err := a.runner.Parse(ctx, line)
		a.emit(out)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed = err
			log.Warn("plan stopped", zap.String("command", line), zap.Error(err))
			a.out.Print("Stopped after a failing command.", commands.KindError)
			return res, nil
		}
		res.Executed++
	}
	a.out.Print("Done!", commands.KindSystem)
	log.Info("plan executed", zap.Int("commands", res.Executed))
	return res, nil
}

func (a *Agent) emit(out shell.Outcome) {
	switch out.Kind {
	case shell.KindOutput:
		a.out.Print(out.Text, commands.KindOutput)
	case shell.KindError:
		a.out.Print(out.Text, commands.KindError)
	case shell.KindSystem:
		a.out.Print(out.Text, commands.KindSystem)
	case shell.KindChat:
		a.out.Print("Not a command: "+out.Text, commands.KindError)
	}
}

// requiresPermission reports whether any planned line runs a state-changing
// command or redirects output, whatever the model claimed.
func (a *Agent) requiresPermission(lines []string) bool {
	for _, line := range lines {
		if strings.Contains(line, ">") {
			return true
		}
		for _, stage := range strings.Split(line, "|") {
			fields := strings.Fields(stage)
			if len(fields) == 0 {
				continue
			}
			name := strings.TrimPrefix(fields[0], "/")
			if exp, ok := a.reg.GetAlias(name); ok {
				if f := strings.Fields(exp); len(f) > 0 {
					name = f[0]
				}
			}
			if spec, ok := a.reg.Get(name); ok && spec.NeedsPermission {
				return true
			}
		}
	}
	return false
}

func (a *Agent) systemPrompt() (string, error) {
	files, err := a.fs.Ls("", vfs.ListOptions{})
	if err != nil {
		files = ""
	}
	ctx := prompts.AgentContext{
		Directory: a.fs.Pwd(),
		Files:     files,
		Themes:    commands.Themes,
		Presets:   commands.PresetNames,
	}
	index := map[string]int{}
	for _, spec := range a.reg.GetAll() {
		i, ok := index[spec.Category]
		if !ok {
			i = len(ctx.Categories)
			index[spec.Category] = i
			ctx.Categories = append(ctx.Categories, prompts.Category{Name: spec.Category})
		}
		ctx.Categories[i].Commands = append(ctx.Categories[i].Commands, prompts.Command{Usage: spec.Usage, Description: spec.Description})
		if spec.NeedsPermission {
			ctx.Mutating = append(ctx.Mutating, spec.Name)
		} else {
			ctx.ReadOnly = append(ctx.ReadOnly, spec.Name)
		}
	}
	return prompts.Agent(ctx)
}

// callWithRetry retries retryable provider errors with exponential backoff.
func (a *Agent) callWithRetry(ctx context.Context, client llm.Client, req llm.ChatRequest, log *zap.Logger) (llm.ChatResponse, error) {
	const maxDelay = 8 * time.Second
	delay := a.opts.RetryDelay
	var lastErr error
	for attempt := 1; attempt <= a.opts.MaxRetries; attempt++ {
		start := time.Now()
		resp, err := client.Chat(ctx, req)
		log.Debug("provider call finished", zap.Int("attempt", attempt), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return llm.ChatResponse{}, ctx.Err()
		}
		pe, ok := llm.IsProviderError(err)
		if !ok || !pe.Retryable {
			return llm.ChatResponse{}, err
		}
		if pe.RetryAfter != nil && *pe.RetryAfter > delay {
			delay = *pe.RetryAfter
		}
		lastErr = err
		if attempt == a.opts.MaxRetries {
			break
		}
		log.Info("retrying provider call", zap.Int("next_attempt", attempt+1), zap.Duration("delay", delay), zap.Error(err))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return llm.ChatResponse{}, ctx.Err()
		case <-timer.C:
		}
		delay = min(delay*2, maxDelay)
	}
	return llm.ChatResponse{}, fmt.Errorf("provider unavailable after %d attempts: %w", a.opts.MaxRetries, lastErr)
}
