package credentials

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override stored values.
const (
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"
	EnvGeminiKey     = "GEMINI_API_KEY"
)

// Credentials stores API keys and provider configuration
type Credentials struct {
	DefaultProvider string              `yaml:"default_provider"`
	Providers       map[string]Provider `yaml:"providers"`
}

// Provider stores authentication details for a single provider
type Provider struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// Manager handles credential storage and retrieval
type Manager struct {
	path string
}

// NewManager returns a manager for $MINAI_CREDENTIALS_PATH, or
// credentials.yaml inside configDir.
func NewManager(configDir string) *Manager {
	path := os.Getenv("MINAI_CREDENTIALS_PATH")
	if path == "" {
		path = filepath.Join(configDir, "credentials.yaml")
	}
	return &Manager{path: path}
}

// Load reads credentials from disk. A missing file yields empty credentials.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Credentials{Providers: make(map[string]Provider)}, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds.Providers == nil {
		creds.Providers = make(map[string]Provider)
	}
	return &creds, nil
}

// LoadWithEnv is Load with the environment overrides applied.
func (m *Manager) LoadWithEnv() (*Credentials, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}
	creds.ApplyEnv(os.Getenv)
	return creds, nil
}

// Save writes credentials with user-only permissions.
func (m *Manager) Save(creds *Credentials) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o700); err != nil {
		return fmt.Errorf("create credentials directory: %w", err)
	}
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(m.path, 0o600); err != nil {
		return fmt.Errorf("restrict credentials: %w", err)
	}
	return nil
}

// Exists checks if credentials file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}

// Path returns the credentials file path
func (m *Manager) Path() string {
	return m.path
}

// ApplyEnv overlays keys and base URLs found through getenv.
func (c *Credentials) ApplyEnv(getenv func(string) string) {
	if key := strings.TrimSpace(getenv(EnvOpenAIKey)); key != "" {
		p := c.Providers["openai"]
		p.APIKey = key
		c.set("openai", p)
	}
	if url := strings.TrimSpace(getenv(EnvOpenAIBaseURL)); url != "" {
		p := c.Providers["openai"]
		p.BaseURL = url
		c.set("openai", p)
	}
	if key := strings.TrimSpace(getenv(EnvGeminiKey)); key != "" {
		p := c.Providers["gemini"]
		p.APIKey = key
		c.set("gemini", p)
	}
}

func (c *Credentials) set(name string, p Provider) {
	if c.Providers == nil {
		c.Providers = make(map[string]Provider)
	}
	c.Providers[name] = p
}

// IsConfigured checks if a provider has an API key.
func (c *Credentials) IsConfigured(provider string) bool {
	return c.GetAPIKey(provider) != ""
}

// GetAPIKey returns the API key for a provider
func (c *Credentials) GetAPIKey(provider string) string {
	return c.Providers[provider].APIKey
}

// GetBaseURL returns the endpoint override for a provider, if any.
func (c *Credentials) GetBaseURL(provider string) string {
	return c.Providers[provider].BaseURL
}

// SetProvider sets the API key for a provider, keeping its base URL.
func (c *Credentials) SetProvider(name, apiKey string) {
	p := c.Providers[name]
	p.APIKey = apiKey
	c.set(name, p)
}

// RemoveProvider removes a provider
func (c *Credentials) RemoveProvider(name string) {
	delete(c.Providers, name)
	if c.DefaultProvider == name {
		c.DefaultProvider = ""
	}
}

// HasAnyProvider checks if any provider is configured
func (c *Credentials) HasAnyProvider() bool {
	return len(c.ListProviders()) > 0
}

// ListProviders returns the configured provider names, sorted.
func (c *Credentials) ListProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.APIKey != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
