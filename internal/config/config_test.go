package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectError bool
		errorString string
	}{
		{
			name:       "defaults pass",
			modifyFunc: func(c *Config) {},
		},
		{
			name:        "unknown provider fails",
			modifyFunc:  func(c *Config) { c.Provider = "claude" },
			expectError: true,
			errorString: "provider must be one of",
		},
		{
			name:        "negative temperature fails",
			modifyFunc:  func(c *Config) { c.Temperature = -0.5 },
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name:        "temperature > 2.0 fails",
			modifyFunc:  func(c *Config) { c.Temperature = 3.0 },
			expectError: true,
			errorString: "temperature must be between",
		},
		{
			name:        "request timeout > 600 fails",
			modifyFunc:  func(c *Config) { c.RequestTimeoutSeconds = 9999 },
			expectError: true,
			errorString: "request_timeout_seconds cannot exceed",
		},
		{
			name:        "unknown parser mode fails",
			modifyFunc:  func(c *Config) { c.ParserMode = "clever" },
			expectError: true,
			errorString: "parser_mode must be one of",
		},
		{
			name:        "huge tolerance fails",
			modifyFunc:  func(c *Config) { c.TypoTolerance = 50 },
			expectError: true,
			errorString: "typo_tolerance",
		},
		{
			name:        "unknown storage fails",
			modifyFunc:  func(c *Config) { c.Storage = "redis" },
			expectError: true,
			errorString: "storage must be",
		},
		{
			name:        "unknown log level fails",
			modifyFunc:  func(c *Config) { c.LogLevel = "trace" },
			expectError: true,
			errorString: "log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modifyFunc(&cfg)
			err := cfg.validate()
			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("Expected error containing %q, got %q", tt.errorString, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("MINAI_CONFIG_DIR", t.TempDir())
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ParserMode != "smart" || cfg.TypoTolerance != 2 || cfg.Model != DefaultOpenAIModel {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.StepDelay() != 200*time.Millisecond {
		t.Errorf("StepDelay = %v, want 200ms", cfg.StepDelay())
	}
}

func TestLoadKeepsExplicitZeroTolerance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("config_version: 1\nprovider: gemini\ntypo_tolerance: 0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TypoTolerance != 0 {
		t.Errorf("TypoTolerance = %d, want 0", cfg.TypoTolerance)
	}
	if cfg.Model != DefaultGeminiModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultGeminiModel)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("parser_mode: [oops"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestEnsureDefaultAndUpdate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := EnsureDefault(path); err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	cfg, err := Update(path, func(c *Config) { c.ParserMode = "strict"; c.Theme = "nord" })
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if cfg.ParserMode != "strict" {
		t.Errorf("ParserMode = %q", cfg.ParserMode)
	}

	// EnsureDefault must not clobber an existing file.
	if err := EnsureDefault(path); err != nil {
		t.Fatalf("EnsureDefault: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reloaded.ParserMode != "strict" || reloaded.Theme != "nord" {
		t.Errorf("update lost: %+v", reloaded)
	}

	if _, err := Update(path, func(c *Config) { c.ParserMode = "bogus" }); err == nil {
		t.Error("expected validation error from Update")
	}
}

func TestLoadUserConfigMigrates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MINAI_CONFIG_DIR", dir)
	t.Setenv("MINAI_CONFIG_PATH", "")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("mode: strict\ntheme: nord\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadUserConfig()
	if err != nil {
		t.Fatalf("LoadUserConfig: %v", err)
	}
	if cfg.ParserMode != "strict" || cfg.Theme != "nord" || cfg.ConfigVersion != 1 {
		t.Errorf("migrated config = %+v", cfg)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "config.yaml.backup.v0.*"))
	if len(matches) != 1 {
		t.Errorf("expected one backup, got %v", matches)
	}
}

func TestPathHonorsEnvironment(t *testing.T) {
	t.Setenv("MINAI_CONFIG_DIR", "/tmp/minai-test")
	t.Setenv("MINAI_CONFIG_PATH", "")
	if got := Path(); got != "/tmp/minai-test/config.yaml" {
		t.Errorf("Path() = %q", got)
	}
	t.Setenv("MINAI_CONFIG_PATH", "/etc/minai.yaml")
	if got := Path(); got != "/etc/minai.yaml" {
		t.Errorf("Path() = %q", got)
	}
}

func TestWatcherReloadsOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	changes := make(chan Config, 8)
	w := NewWatcher(path, func(c Config) { changes <- c }, WithDebounce(20*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	next := Default()
	next.ParserMode = "strict"
	if err := Save(path, next); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.ParserMode != "strict" {
			t.Errorf("reloaded ParserMode = %q, want strict", cfg.ParserMode)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatcherFailsForMissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "missing", "config.yaml"), func(Config) {})
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error watching a missing directory")
	}
}
