package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"minai/internal/config"
	"minai/internal/credentials"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MINAI_CONFIG_DIR", dir)
	t.Setenv("MINAI_CONFIG_PATH", "")
	t.Setenv("MINAI_CREDENTIALS_PATH", "")
	t.Setenv("MINAI_MOCK_LLM", "1")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	return dir
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("minai %v: %v\n%s", args, err, out.String())
	}
	return out.String()
}

func TestExecPersistsAcrossRuns(t *testing.T) {
	dir := isolate(t)

	out := run(t, "exec", "mkdir notes", "echo hi > notes/a.txt", "cat notes/a.txt")
	if !strings.Contains(out, "hi") {
		t.Fatalf("cat output missing, got:\n%s", out)
	}
	out = run(t, "exec", "ls")
	if !strings.Contains(out, "notes/") {
		t.Fatalf("ls after restart missing notes/, got:\n%s", out)
	}

	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "state", "minai.log")); err != nil {
		t.Fatalf("log file not written: %v", err)
	}

	out = run(t, "reset")
	if !strings.Contains(out, "Filesystem reset to defaults.") {
		t.Fatalf("reset output = %q", out)
	}
	out = run(t, "exec", "ls")
	if strings.Contains(out, "notes/") {
		t.Fatalf("notes/ survived reset:\n%s", out)
	}
}

func TestExecSetModePersistsToConfig(t *testing.T) {
	dir := isolate(t)
	run(t, "exec", "set mode strict")
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ParserMode != "strict" {
		t.Fatalf("parser_mode = %q, want strict", cfg.ParserMode)
	}
}

func TestAgentReportsUnusablePlan(t *testing.T) {
	isolate(t)
	out := run(t, "agent", "--yes", "make", "a", "folder")
	if !strings.Contains(out, "AI Error: no valid JSON found in response") {
		t.Fatalf("agent output:\n%s", out)
	}
}

func TestVersion(t *testing.T) {
	Version = "1.2.3"
	t.Cleanup(func() { Version = "dev" })
	if out := run(t, "version"); out != "MinAI version 1.2.3\n" {
		t.Fatalf("version output = %q", out)
	}
}

func TestBuildSwitcher(t *testing.T) {
	t.Setenv("MINAI_MOCK_LLM", "")
	ctx := context.Background()
	cfg := config.Default()

	sw, err := buildSwitcher(ctx, cfg, &credentials.Credentials{}, zap.NewNop())
	if err != nil || sw != nil {
		t.Fatalf("no credentials: switcher=%v err=%v", sw, err)
	}

	creds := &credentials.Credentials{}
	creds.SetProvider(config.ProviderOpenAI, "sk-test")
	cfg.Model = "gpt-4o-mini"
	sw, err = buildSwitcher(ctx, cfg, creds, zap.NewNop())
	if err != nil {
		t.Fatalf("buildSwitcher: %v", err)
	}
	if got := sw.Active(); got.Key != config.ProviderOpenAI || got.Model != "gpt-4o-mini" {
		t.Fatalf("active = %+v", got)
	}

	cfg.Provider = config.ProviderMock
	sw, err = buildSwitcher(ctx, cfg, &credentials.Credentials{}, zap.NewNop())
	if err != nil {
		t.Fatalf("mock: %v", err)
	}
	if got := sw.Active().Key; got != config.ProviderMock {
		t.Fatalf("active = %q, want mock", got)
	}
}
