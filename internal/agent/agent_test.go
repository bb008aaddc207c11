package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"minai/internal/commands"
	"minai/internal/llm"
	"minai/internal/llm/mockclient"
	"minai/internal/shell"
	"minai/internal/store"
	"minai/internal/vfs"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Print(text string, _ commands.OutputKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *recorder) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.lines, "\n")
}

type nopUI struct{}

func (nopUI) Print(string, commands.OutputKind) {}
func (nopUI) Clear()                            {}
func (nopUI) OpenEditor(_ context.Context, _, content string) (string, bool, error) {
	return content, false, nil
}
func (nopUI) PickUpload(context.Context) (string, []byte, error) { return "", nil, nil }
func (nopUI) SaveDownload(name, _ string) (string, error)       { return name, nil }
func (nopUI) OpenSettings(context.Context) error                { return nil }
func (nopUI) Theme() string                                     { return "" }
func (nopUI) SetTheme(string) error                             { return nil }
func (nopUI) SetBackground(string) error                        { return nil }

type nopShell struct{}

func (nopShell) SwitchMode(string) string                          { return "" }
func (nopShell) ParserMode() string                                { return shell.ModeSmart }
func (nopShell) SetParserMode(string) error                        { return nil }
func (nopShell) History() []string                                 { return nil }
func (nopShell) Ask(_ context.Context, q string) (string, error) { return q, nil }

type fixture struct {
	fs      *vfs.FileSystem
	reg     *commands.Registry
	out     *recorder
	replies []string
	asked   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs, err := vfs.Open(store.NewMemory())
	require.NoError(t, err)
	reg := commands.NewRegistry()
	commands.RegisterAll(reg, commands.Env{FS: fs, UI: nopUI{}, Shell: nopShell{}})
	reg.Register(commands.Spec{
		Name:        "explode",
		Description: "always fails",
		Usage:       "explode",
		Handler: func(context.Context, *commands.Invocation) (string, error) {
			return "", errors.New("boom")
		},
	})
	return &fixture{fs: fs, reg: reg, out: &recorder{}}
}

func (f *fixture) agent(client llm.Client, opts Options) *Agent {
	confirm := func(context.Context, Plan) (string, error) {
		f.asked++
		if len(f.replies) == 0 {
			return "", errors.New("unexpected confirmation")
		}
		r := f.replies[0]
		f.replies = f.replies[1:]
		return r, nil
	}
	opts.RetryDelay = time.Millisecond
	return New(client, shell.New(f.reg, f.fs), f.reg, f.fs, f.out, confirm, opts)
}

func (f *fixture) home(t *testing.T) string {
	t.Helper()
	out, err := f.fs.Ls("/home", vfs.ListOptions{})
	require.NoError(t, err)
	return out
}

const mkdirPlan = `{"plan":"Create x","commands":["mkdir x"],"needsPermission":true}`

func TestParsePlan(t *testing.T) {
	want := Plan{Plan: "List", Commands: []string{"ls"}}
	tests := []struct {
		name    string
		content string
	}{
		{"bare", `{"plan":"List","commands":["ls"],"needsPermission":false}`},
		{"fenced", "Here you go:\n```json\n{\"plan\":\"List\",\"commands\":[\"ls\"]}\n```\nEnjoy."},
		{"fenced without language", "```\n{\"plan\":\"List\",\"commands\":[\"ls\"]}\n```"},
		{"embedded", `Sure! {"plan":"List","commands":[" ls ",""]} hope that helps`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePlan(tt.content)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("plan mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := ParsePlan("I cannot help with that.")
	require.ErrorIs(t, err, ErrMalformedPlan)
	_, err = ParsePlan("{not json}")
	require.ErrorIs(t, err, ErrMalformedPlan)

	for _, content := range []string{
		"null",
		`{"answer":"I can't"}`,
		`{"plan":"List"}`,
		`{"plan":"List","commands":null}`,
		`["ls"]`,
	} {
		_, err := ParsePlan(content)
		require.ErrorIs(t, err, ErrMalformedPlan, content)
	}

	empty, err := ParsePlan(`{"plan":"Nothing to do","commands":[]}`)
	require.NoError(t, err)
	require.Empty(t, empty.Commands)
}

func TestIsConfirmation(t *testing.T) {
	for _, yes := range []string{"yes", "y", "YES", " Y "} {
		require.True(t, isConfirmation(yes), yes)
	}
	for _, no := range []string{"", "no", "n", "yeah", "sure", "yes please"} {
		require.False(t, isConfirmation(no), no)
	}
}

func TestConfirmationGating(t *testing.T) {
	t.Run("declined", func(t *testing.T) {
		f := newFixture(t)
		f.replies = []string{"no"}
		res, err := f.agent(mockclient.Reply(mkdirPlan), Options{}).Handle(context.Background(), "make a folder x")
		require.NoError(t, err)
		require.True(t, res.Cancelled)
		require.Zero(t, res.Executed)
		require.NotContains(t, f.home(t), "x/")
		require.Contains(t, f.out.text(), "Cancelled.")
		require.Contains(t, f.out.text(), " > mkdir x")
	})
	t.Run("confirmed", func(t *testing.T) {
		f := newFixture(t)
		f.replies = []string{"yes"}
		res, err := f.agent(mockclient.Reply(mkdirPlan), Options{}).Handle(context.Background(), "make a folder x")
		require.NoError(t, err)
		require.False(t, res.Cancelled)
		require.Equal(t, 1, res.Executed)
		require.Contains(t, f.home(t), "x/")
		require.Contains(t, f.out.text(), "Done!")
	})
}

func TestReadOnlyPlanRunsWithoutConfirmation(t *testing.T) {
	f := newFixture(t)
	a := f.agent(mockclient.Reply(`{"plan":"Where am I","commands":["pwd","echo hi"],"needsPermission":false}`), Options{})
	res, err := a.Handle(context.Background(), "where am I?")
	require.NoError(t, err)
	require.Zero(t, f.asked)
	require.Equal(t, 2, res.Executed)
	text := f.out.text()
	require.Contains(t, text, "Executing: pwd, echo hi")
	require.Contains(t, text, "$ pwd\n/home")
	require.Contains(t, text, "$ echo hi\nhi")
	require.Equal(t, Idle, a.State())
}

func TestMutatingPlanAlwaysAsks(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
	}{
		{"mutating command", "mkdir y"},
		{"redirect", "echo hi > y.txt"},
		{"alias of mutating command", "md y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.reg.SetAlias("md", "mkdir")
			f.replies = []string{"n"}
			plan := `{"plan":"p","commands":["` + tt.cmd + `"],"needsPermission":false}`
			res, err := f.agent(mockclient.Reply(plan), Options{}).Handle(context.Background(), "do it")
			require.NoError(t, err)
			require.Equal(t, 1, f.asked)
			require.True(t, res.Cancelled)
			require.NotContains(t, f.home(t), "y")
		})
	}
}

func TestPromptDescribesSession(t *testing.T) {
	f := newFixture(t)
	client := mockclient.Reply(`{"plan":"nothing","commands":[]}`)
	_, err := f.agent(client, Options{Model: "gpt-4o", Temperature: 0.2}).Handle(context.Background(), "hello there")
	require.NoError(t, err)

	reqs := client.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "gpt-4o", reqs[0].Model)
	require.Len(t, reqs[0].Messages, 2)
	system := reqs[0].Messages[0]
	require.Equal(t, llm.RoleSystem, system.Role)
	require.Contains(t, system.Content, "/home")
	require.Contains(t, system.Content, "welcome.txt")
	require.Contains(t, system.Content, "explode")
	require.Equal(t, llm.Message{Role: llm.RoleUser, Content: "hello there"}, reqs[0].Messages[1])
}

func TestBusyRejectsSecondRequest(t *testing.T) {
	f := newFixture(t)
	client := mockclient.Reply(`{"plan":"p","commands":["pwd"]}`)
	client.Gate = make(chan struct{})
	a := f.agent(client, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := a.Handle(context.Background(), "first")
		done <- err
	}()
	require.Eventually(t, func() bool { return a.State() == Thinking }, time.Second, time.Millisecond)

	_, err := a.Handle(context.Background(), "second")
	require.ErrorIs(t, err, ErrBusy)

	close(client.Gate)
	require.NoError(t, <-done)
	require.Equal(t, Idle, a.State())
	require.Len(t, client.Requests(), 1)
}

func TestProviderFailuresAbort(t *testing.T) {
	t.Run("malformed reply", func(t *testing.T) {
		f := newFixture(t)
		a := f.agent(mockclient.Reply("I would rather chat."), Options{})
		_, err := a.Handle(context.Background(), "do something")
		require.ErrorIs(t, err, ErrMalformedPlan)
		require.Equal(t, Idle, a.State())
	})
	t.Run("json without commands", func(t *testing.T) {
		f := newFixture(t)
		a := f.agent(mockclient.Reply(`{"answer":"I can't"}`), Options{})
		_, err := a.Handle(context.Background(), "do something")
		require.ErrorIs(t, err, ErrMalformedPlan)
		require.NotContains(t, f.out.text(), "Plan:")
	})
	t.Run("auth error is not retried", func(t *testing.T) {
		f := newFixture(t)
		client := mockclient.NewScripted(mockclient.Step{Err: llm.FromStatus("openai", 401, "bad key", "")})
		_, err := f.agent(client, Options{}).Handle(context.Background(), "do something")
		pe, ok := llm.IsProviderError(err)
		require.True(t, ok)
		require.Equal(t, llm.ErrorTypeAuth, pe.Type)
		require.Len(t, client.Requests(), 1)
	})
	t.Run("rate limit is retried", func(t *testing.T) {
		f := newFixture(t)
		client := mockclient.NewScripted(
			mockclient.Step{Err: llm.FromStatus("openai", 429, "slow down", "")},
			mockclient.Step{Content: `{"plan":"p","commands":["pwd"]}`},
		)
		res, err := f.agent(client, Options{}).Handle(context.Background(), "where")
		require.NoError(t, err)
		require.Equal(t, 1, res.Executed)
		require.Len(t, client.Requests(), 2)
	})
	t.Run("retries exhausted", func(t *testing.T) {
		f := newFixture(t)
		down := llm.FromStatus("openai", 503, "", "")
		client := mockclient.NewScripted(mockclient.Step{Err: down}, mockclient.Step{Err: down})
		_, err := f.agent(client, Options{MaxRetries: 2}).Handle(context.Background(), "where")
		require.ErrorContains(t, err, "after 2 attempts")
	})
	t.Run("no client", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.agent(nil, Options{}).Handle(context.Background(), "where")
		require.ErrorIs(t, err, llm.ErrNoProvider)
	})
}

func TestExecutionStopsAtHandlerError(t *testing.T) {
	f := newFixture(t)
	f.replies = []string{"y"}
	plan := `{"plan":"p","commands":["explode","mkdir z"],"needsPermission":true}`
	res, err := f.agent(mockclient.Reply(plan), Options{}).Handle(context.Background(), "go")
	require.NoError(t, err)
	require.Zero(t, res.Executed)
	var he *shell.HandlerError
	require.ErrorAs(t, res.Failed, &he)
	require.NotContains(t, f.home(t), "z/")
	require.Contains(t, f.out.text(), "Error executing explode: boom")
}

func TestUserErrorsDoNotStopExecution(t *testing.T) {
	f := newFixture(t)
	plan := `{"plan":"p","commands":["cat missing.txt","pwd"]}`
	res, err := f.agent(mockclient.Reply(plan), Options{}).Handle(context.Background(), "go")
	require.NoError(t, err)
	require.Equal(t, 2, res.Executed)
	require.Contains(t, f.out.text(), "No such file or directory")
}

func TestStepDelayHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	out := &cancelOnPrint{recorder: f.out, trigger: "$ pwd", cancel: cancel}
	plan := `{"plan":"p","commands":["pwd","pwd"]}`
	a := New(mockclient.Reply(plan), shell.New(f.reg, f.fs), f.reg, f.fs, out, nil, Options{StepDelay: time.Hour})
	res, err := a.Handle(ctx, "go")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, res.Executed)
}

type cancelOnPrint struct {
	*recorder
	trigger string
	cancel  func()
}

func (c *cancelOnPrint) Print(text string, kind commands.OutputKind) {
	c.recorder.Print(text, kind)
	if text == c.trigger {
		c.cancel()
	}
}
