package versions

// ConfigV0 is the unversioned layout written before config_version existed.
type ConfigV0 struct {
	Provider              string  `yaml:"ai_provider"`
	Model                 string  `yaml:"model"`
	BaseURL               string  `yaml:"base_url"`
	Temperature           float64 `yaml:"temperature"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	Mode                  string  `yaml:"mode"`
	Theme                 string  `yaml:"theme"`
	Background            string  `yaml:"background"`
}
