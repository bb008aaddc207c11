package migrate

import (
	"strings"

	"gopkg.in/yaml.v3"

	"minai/internal/config/versions"
)

// MigrationV0toV1 renames `mode` to `parser_mode`, maps the old
// `ai_provider` key and fills the fields v0 never wrote.
type MigrationV0toV1 struct{}

func (MigrationV0toV1) FromVersion() int { return Version0 }
func (MigrationV0toV1) ToVersion() int   { return Version1 }
func (MigrationV0toV1) Description() string {
	return "add config_version, rename mode to parser_mode, fill defaults"
}

func (MigrationV0toV1) Migrate(data []byte) ([]byte, error) {
	var v0 versions.ConfigV0
	if err := yaml.Unmarshal(data, &v0); err != nil {
		return nil, err
	}

	v1 := versions.ConfigV1{
		ConfigVersion:         Version1,
		Provider:              strings.ToLower(strings.TrimSpace(v0.Provider)),
		Model:                 v0.Model,
		BaseURL:               v0.BaseURL,
		Temperature:           v0.Temperature,
		RequestTimeoutSeconds: v0.RequestTimeoutSeconds,
		ParserMode:            strings.ToLower(strings.TrimSpace(v0.Mode)),
		TypoTolerance:         2,
		AgentStepDelayMS:      200,
		NetworkTimeoutSeconds: 5,
		Storage:               "file",
		LogLevel:              "info",
		Theme:                 v0.Theme,
		Background:            v0.Background,
	}

	if v1.Provider == "" {
		v1.Provider = "openai"
	}
	// "aipipe" and "openrouter" were OpenAI-compatible endpoints.
	if v1.Provider == "aipipe" || v1.Provider == "openrouter" {
		v1.Provider = "openai"
	}
	switch v1.ParserMode {
	case "strict", "helpful", "smart":
	default:
		v1.ParserMode = "smart"
	}
	if v1.Temperature == 0 {
		v1.Temperature = 0.7
	}
	if v1.RequestTimeoutSeconds <= 0 {
		v1.RequestTimeoutSeconds = 60
	}
	if v1.Theme == "" {
		v1.Theme = "cyberpunk"
	}
	return yaml.Marshal(&v1)
}
