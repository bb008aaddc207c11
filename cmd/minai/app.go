package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"minai/internal/commands"
	"minai/internal/config"
	"minai/internal/credentials"
	"minai/internal/fusefs"
	"minai/internal/llm"
	"minai/internal/logging"
	"minai/internal/session"
	"minai/internal/store"
	"minai/internal/terminal"
	"minai/internal/vfs"
)

// appOptions picks the streams and terminal features of one run.
type appOptions struct {
	in    io.Reader
	out   io.Writer
	color bool
	ask   func(string) (string, error)
}

// app is everything one process wires together.
type app struct {
	in       io.Reader
	out      io.Writer
	cfg      config.Config
	cfgPath  string
	logger   *zap.Logger
	closeLog func() error
	store    store.Store
	fs       *vfs.FileSystem
	creds    *credentials.Manager
	switcher *llm.Switcher
	ui       *terminal.UI
	session  *session.Session
}

func openApp(ctx context.Context, g *globalFlags, opts appOptions) (_ *app, err error) {
	a := &app{cfgPath: g.configPath}
	if a.cfgPath == "" {
		a.cfgPath = config.Path()
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := config.EnsureDefault(a.cfgPath); err != nil {
		return nil, err
	}
	if a.cfg, err = config.LoadFile(a.cfgPath, nil); err != nil {
		return nil, err
	}

	a.logger, a.closeLog, err = logging.New(logging.Options{
		Dir:   a.cfg.StateDir,
		Level: a.cfg.LogLevel,
		Dev:   g.verbose,
	})
	if err != nil {
		return nil, err
	}
	logging.SetGlobal(a.logger)

	if a.store, err = store.Open(a.cfg.Storage, a.cfg.StateDir); err != nil {
		return nil, fmt.Errorf("open %s store: %w", a.cfg.Storage, err)
	}
	if a.fs, err = vfs.Open(a.store, vfs.WithLogger(a.logger.Named("vfs"))); err != nil {
		return nil, fmt.Errorf("open filesystem: %w", err)
	}

	a.creds = credentials.NewManager(filepath.Dir(a.cfgPath))
	if err := a.loadProviders(ctx); err != nil {
		return nil, err
	}

	if opts.in == nil {
		opts.in = os.Stdin
	}
	if opts.out == nil {
		opts.out = os.Stdout
	}
	a.in, a.out = opts.in, opts.out
	a.ui = terminal.NewUI(terminal.Options{
		In:         opts.in,
		Out:        opts.out,
		Color:      opts.color,
		Theme:      a.cfg.Theme,
		Background: a.cfg.Background,
		Ask:        opts.ask,
		Configure:  a.configure,
		Persist:    a.persistLook,
		Logger:     a.logger,
	})

	a.session, err = session.New(session.Options{
		FS:            a.fs,
		Store:         a.store,
		UI:            a.ui,
		Client:        a.client(),
		HTTP:          &http.Client{Timeout: a.cfg.NetworkTimeout()},
		Logger:        a.logger,
		Model:         a.cfg.Model,
		Temperature:   a.cfg.Temperature,
		ParserMode:    a.cfg.ParserMode,
		TypoTolerance: a.cfg.TypoTolerance,
		StepDelay:     a.cfg.StepDelay(),
		PingInterval:  time.Second,
		Version:       Version,
		OnParserMode:  a.persistParserMode,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("session ready",
		zap.String("storage", a.cfg.Storage),
		zap.String("provider", a.cfg.Provider),
		zap.Bool("ai", a.switcher != nil))
	return a, nil
}

// client returns the switcher as an llm.Client, or nil when no provider is
// configured.
func (a *app) client() llm.Client {
	if a.switcher == nil {
		return nil
	}
	return a.switcher
}

func (a *app) loadProviders(ctx context.Context) error {
	creds, err := a.creds.LoadWithEnv()
	if err != nil {
		return err
	}
	sw, err := buildSwitcher(ctx, a.cfg, creds, a.logger)
	if err != nil {
		return err
	}
	a.switcher = sw
	return nil
}

// configure runs the credential menu and swaps in the new providers.
func (a *app) configure(ctx context.Context, in io.Reader, out io.Writer) error {
	if err := credentials.NewWizard(a.creds, in, out).Menu(); err != nil {
		return err
	}
	if err := a.loadProviders(ctx); err != nil {
		return err
	}
	a.session.SetClient(a.client())
	return nil
}

func (a *app) persistLook(theme, background string) error {
	_, err := config.Update(a.cfgPath, func(c *config.Config) {
		c.Theme = theme
		c.Background = background
	})
	return err
}

func (a *app) persistParserMode(mode string) {
	if _, err := config.Update(a.cfgPath, func(c *config.Config) { c.ParserMode = mode }); err != nil {
		a.logger.Warn("persist parser mode", zap.Error(err))
	}
}

// applyConfig pushes a reloaded config file into the running session.
func (a *app) applyConfig(cfg config.Config) {
	a.session.ApplySettings(cfg.ParserMode, cfg.TypoTolerance)
	a.ui.Apply(cfg.Theme, cfg.Background)
	if a.switcher != nil && cfg.Provider != a.switcher.Active().Key {
		if err := a.switcher.Use(cfg.Provider); err != nil {
			a.logger.Warn("switch provider", zap.String("provider", cfg.Provider), zap.Error(err))
		}
	}
}

func (a *app) runAgent(ctx context.Context, request string, yes bool) error {
	s := a.session
	s.SwitchMode(commands.ModeAgent)
	s.HandleLine(ctx, request)
	s.Settle(ctx)
	if s.AwaitingConfirmation() {
		answer := "yes"
		if !yes {
			reply, err := a.ask(s.Prompt())
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			answer = reply
		}
		s.HandleLine(ctx, answer)
	}
	s.Wait()
	return ctx.Err()
}

func (a *app) ask(question string) (string, error) {
	fmt.Fprint(a.out, question)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	return strings.TrimSpace(line), err
}

func (a *app) mount(ctx context.Context, dir string) error {
	return fusefs.Mount(ctx, dir, a.fs, &fusefs.Config{Logger: a.logger.Named("fuse")})
}

// serve runs the REPL with the config watcher and, when mountDir is set, the
// FUSE server. Everything stops when the REPL ends.
func (a *app) serve(ctx context.Context, repl *terminal.REPL, mountDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w := config.NewWatcher(a.cfgPath, a.applyConfig, config.WithWatcherLogger(a.logger))
		return w.Run(gctx)
	})
	if mountDir != "" {
		g.Go(func() error { return a.mount(gctx, mountDir) })
	}
	g.Go(func() error {
		defer cancel()
		return repl.Run(gctx)
	})
	return g.Wait()
}

// Close stops background work and releases the store and the log file.
func (a *app) Close() error {
	var errs []error
	if a.session != nil {
		a.session.Close()
	}
	if c, ok := a.store.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
	}
	return errors.Join(errs...)
}

func runInteractive(ctx context.Context, g *globalFlags, mountDir string) error {
	tty := terminal.IsTerminal()
	opts := appOptions{color: tty}
	var replOpts []terminal.REPLOption
	if tty {
		opts.ask = terminal.Ask
	} else {
		in := bufio.NewReader(os.Stdin)
		opts.in = in
		replOpts = append(replOpts, terminal.WithInput(in))
	}
	a, err := openApp(ctx, g, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	greeting := banner
	if a.switcher == nil {
		greeting += "\nNo AI provider configured. Type 'config' or run 'minai setup' to add an API key."
	}
	replOpts = append(replOpts, terminal.WithBanner(greeting), terminal.WithLogger(a.logger.Named("repl")))
	completer := terminal.NewCompleter(a.session.Registry(), a.fs, a.session.Tracker())
	return a.serve(ctx, terminal.NewREPL(a.session, completer, replOpts...), mountDir)
}

func runSetup(g *globalFlags, in io.Reader, out io.Writer) error {
	path := g.configPath
	if path == "" {
		path = config.Path()
	}
	mgr := credentials.NewManager(filepath.Dir(path))
	w := credentials.NewWizard(mgr, in, out)
	if !mgr.Exists() {
		_, err := w.Onboard()
		return err
	}
	return w.Menu()
}
