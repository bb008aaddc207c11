package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"minai/internal/config/migrate"
)

// Provider keys and their default models.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderMock   = "mock"

	DefaultOpenAIModel = "gpt-4o"
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultMockModel   = "mock-model"
)

// Parser modes accepted by parser_mode.
var ParserModes = []string{"strict", "helpful", "smart"}

const fileName = "config.yaml"

// Config captures the tunable runtime settings of the shell.
type Config struct {
	ConfigVersion         int     `yaml:"config_version"`
	Provider              string  `yaml:"provider"`
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url,omitempty"`
	Temperature           float64 `yaml:"temperature"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	ParserMode            string  `yaml:"parser_mode"`
	TypoTolerance         int     `yaml:"typo_tolerance"`
	AgentStepDelayMS      int     `yaml:"agent_step_delay_ms"`
	NetworkTimeoutSeconds int     `yaml:"network_timeout_seconds"`
	Storage               string  `yaml:"storage"`
	StateDir              string  `yaml:"state_dir,omitempty"`
	LogLevel              string  `yaml:"log_level"`
	Theme                 string  `yaml:"theme"`
	Background            string  `yaml:"background,omitempty"`
}

// Default returns the configuration a fresh install starts with.
func Default() Config {
	cfg := Config{
		ConfigVersion:         migrate.CurrentVersion,
		Provider:              ProviderOpenAI,
		Temperature:           0.7,
		RequestTimeoutSeconds: 60,
		ParserMode:            "smart",
		TypoTolerance:         2,
		AgentStepDelayMS:      200,
		NetworkTimeoutSeconds: 5,
		Storage:               "file",
		LogLevel:              "info",
		Theme:                 "cyberpunk",
	}
	cfg.applyDefaults()
	return cfg
}

// Dir is $MINAI_CONFIG_DIR, or ~/.minai.
func Dir() string {
	if dir := os.Getenv("MINAI_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".minai"
	}
	return filepath.Join(home, ".minai")
}

// Path is $MINAI_CONFIG_PATH, or config.yaml inside Dir.
func Path() string {
	if p := os.Getenv("MINAI_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(Dir(), fileName)
}

// EnsureDefault writes a default config file at path unless one exists.
func EnsureDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	return Save(path, Default())
}

// LoadUserConfig migrates and loads the config at Path. A missing file
// yields the defaults.
func LoadUserConfig() (Config, error) {
	return LoadFile(Path(), nil)
}

// LoadFile upgrades an older config at path, keeping a backup, and loads it.
func LoadFile(path string, logger *zap.Logger) (Config, error) {
	if err := migrate.MigrateConfig(path, time.Now(), logger); err != nil {
		return Config{}, err
	}
	return Load(path)
}

// Load reads path on top of the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills values left blank in the file.
func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = c.ModelFor(c.Provider)
	}
	if c.RequestTimeoutSeconds <= 0 {
		c.RequestTimeoutSeconds = 60
	}
	if c.ParserMode == "" {
		c.ParserMode = "smart"
	}
	if c.TypoTolerance < 0 {
		c.TypoTolerance = 2
	}
	if c.AgentStepDelayMS < 0 {
		c.AgentStepDelayMS = 0
	}
	if c.NetworkTimeoutSeconds <= 0 {
		c.NetworkTimeoutSeconds = 5
	}
	if c.Storage == "" {
		c.Storage = "file"
	}
	if c.StateDir == "" {
		c.StateDir = filepath.Join(Dir(), "state")
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c Config) validate() error {
	switch c.Provider {
	case ProviderOpenAI, ProviderGemini, ProviderMock:
	default:
		return fmt.Errorf("provider must be one of openai, gemini, mock (got %q)", c.Provider)
	}
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0 (got %f)", c.Temperature)
	}
	if c.RequestTimeoutSeconds > 600 {
		return fmt.Errorf("request_timeout_seconds cannot exceed 600 (10 minutes)")
	}
	if c.NetworkTimeoutSeconds > 120 {
		return fmt.Errorf("network_timeout_seconds cannot exceed 120")
	}
	if !slices.Contains(ParserModes, c.ParserMode) {
		return fmt.Errorf("parser_mode must be one of %s (got %q)", strings.Join(ParserModes, ", "), c.ParserMode)
	}
	if c.TypoTolerance > 10 {
		return fmt.Errorf("typo_tolerance cannot exceed 10")
	}
	if c.AgentStepDelayMS > 10_000 {
		return fmt.Errorf("agent_step_delay_ms cannot exceed 10000")
	}
	switch c.Storage {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage must be file or sqlite (got %q)", c.Storage)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error (got %q)", c.LogLevel)
	}
	return nil
}

// ModelFor returns the default model of provider.
func (c Config) ModelFor(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderGemini:
		return DefaultGeminiModel
	case ProviderMock:
		return DefaultMockModel
	default:
		return DefaultOpenAIModel
	}
}

// RequestTimeout bounds one LLM call.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// NetworkTimeout bounds ping and curl requests.
func (c Config) NetworkTimeout() time.Duration {
	return time.Duration(c.NetworkTimeoutSeconds) * time.Second
}

// StepDelay separates agent plan steps.
func (c Config) StepDelay() time.Duration {
	return time.Duration(c.AgentStepDelayMS) * time.Millisecond
}

// Save writes cfg to path, replacing the file atomically.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// Update loads path, applies fn and saves the result.
func Update(path string, fn func(*Config)) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return Config{}, err
	}
	fn(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, Save(path, cfg)
}
