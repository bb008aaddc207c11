package commands

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"minai/internal/vfs"
)

// OutputKind tells the front end how to style printed text.
type OutputKind int

const (
	KindOutput OutputKind = iota
	KindSystem
	KindError
	KindAI
	KindUser
	// KindMarkdown is output the front end may render as Markdown.
	KindMarkdown
)

// UI is the presentation collaborator. Commands only hand it strings.
type UI interface {
	Print(text string, kind OutputKind)
	Clear()
	// OpenEditor lets the user edit content; saved is false when the edit
	// was abandoned.
	OpenEditor(ctx context.Context, name, content string) (edited string, saved bool, err error)
	// PickUpload asks the user for a file to bring into the virtual tree.
	PickUpload(ctx context.Context) (name string, content []byte, err error)
	// SaveDownload hands a virtual file to the user and returns where it went.
	SaveDownload(name, content string) (string, error)
	OpenSettings(ctx context.Context) error
	Theme() string
	SetTheme(name string) error
	SetBackground(value string) error
}

// Session modes a command can switch to.
const (
	ModeShell = "shell"
	ModeAgent = "agent"
	ModeChat  = "chat"
)

// Shell is the session-side surface commands drive.
type Shell interface {
	SwitchMode(mode string) string
	ParserMode() string
	SetParserMode(mode string) error
	History() []string
	Ask(ctx context.Context, question string) (string, error)
}

// Env is what command groups are built from.
type Env struct {
	FS     *vfs.FileSystem
	UI     UI
	Shell  Shell
	HTTP   *http.Client
	Logger *zap.Logger

	Now          func() time.Time
	Started      time.Time
	PingInterval time.Duration
	PingCount    int
	Version      string
}

func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	if e.HTTP == nil {
		e.HTTP = &http.Client{Timeout: 10 * time.Second}
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.Started.IsZero() {
		e.Started = e.Now()
	}
	if e.PingCount <= 0 {
		e.PingCount = 4
	}
	if e.Version == "" {
		e.Version = "dev"
	}
	return e
}

// RegisterAll installs every command group and the built-in aliases.
func RegisterAll(reg *Registry, env Env) {
	env = env.withDefaults()
	RegisterFileSystem(reg, env)
	RegisterContent(reg, env)
	RegisterSystem(reg, env)
	RegisterNetwork(reg, env)
	RegisterTools(reg, env)
	RegisterHelp(reg, env)
	RegisterAI(reg, env)
	RegisterBuiltinAliases(reg)
}
