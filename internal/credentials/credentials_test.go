package credentials

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	t.Setenv("MINAI_CREDENTIALS_PATH", "")
	return NewManager(t.TempDir())
}

func TestSaveLoadRoundTripWithRestrictedMode(t *testing.T) {
	m := newManager(t)
	require.False(t, m.Exists())

	empty, err := m.Load()
	require.NoError(t, err)
	require.False(t, empty.HasAnyProvider())

	creds := &Credentials{DefaultProvider: "openai"}
	creds.SetProvider("openai", "sk-test")
	creds.SetProvider("gemini", "g-test")
	require.NoError(t, m.Save(creds))

	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "sk-test", loaded.GetAPIKey("openai"))
	require.Equal(t, []string{"gemini", "openai"}, loaded.ListProviders())

	loaded.RemoveProvider("openai")
	require.Empty(t, loaded.DefaultProvider)
	require.False(t, loaded.IsConfigured("openai"))
}

func TestApplyEnvOverrides(t *testing.T) {
	creds := &Credentials{}
	creds.SetProvider("openai", "stored")
	env := map[string]string{
		EnvOpenAIKey:     "from-env",
		EnvOpenAIBaseURL: "https://aipipe.org/openai/v1",
		EnvGeminiKey:     " g-env ",
	}
	creds.ApplyEnv(func(k string) string { return env[k] })
	require.Equal(t, "from-env", creds.GetAPIKey("openai"))
	require.Equal(t, "https://aipipe.org/openai/v1", creds.GetBaseURL("openai"))
	require.Equal(t, "g-env", creds.GetAPIKey("gemini"))
}

func TestLoadRejectsBadYAML(t *testing.T) {
	m := newManager(t)
	require.NoError(t, os.WriteFile(m.Path(), []byte("providers: [oops"), 0o600))
	_, err := m.Load()
	require.ErrorContains(t, err, "parse credentials")
}

func TestOnboardSavesChoice(t *testing.T) {
	m := newManager(t)
	var out bytes.Buffer
	creds, err := NewWizard(m, strings.NewReader("2\n\ng-123\n"), &out).Onboard()
	require.NoError(t, err)
	require.Equal(t, "gemini", creds.DefaultProvider)
	require.Equal(t, "g-123", creds.GetAPIKey("gemini"))
	require.Contains(t, out.String(), "API key cannot be empty")

	stored, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "g-123", stored.GetAPIKey("gemini"))
}

func TestOnboardInvalidChoice(t *testing.T) {
	_, err := NewWizard(newManager(t), strings.NewReader("9\n"), &bytes.Buffer{}).Onboard()
	require.ErrorContains(t, err, "invalid choice")
}

func TestMenuAddChangeRemove(t *testing.T) {
	m := newManager(t)
	input := strings.Join([]string{
		"1", "1", "sk-a", // add openai
		"1", "gemini", "g-b", // add gemini
		"2", "gemini", // make gemini default
		"3", "openai", // remove openai
		"7", // invalid
		"4",
	}, "\n") + "\n"
	var out bytes.Buffer
	require.NoError(t, NewWizard(m, strings.NewReader(input), &out).Menu())
	require.Contains(t, out.String(), "Invalid choice")

	creds, err := m.Load()
	require.NoError(t, err)
	require.Equal(t, "gemini", creds.DefaultProvider)
	require.Equal(t, []string{"gemini"}, creds.ListProviders())
}

func TestNewManagerHonorsEnvPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elsewhere.yaml")
	t.Setenv("MINAI_CREDENTIALS_PATH", path)
	require.Equal(t, path, NewManager("/ignored").Path())
}
