package versions

// ConfigV1 is the first versioned config.
// Changes from v0:
// - Added ConfigVersion
// - `mode` renamed to `parser_mode`, `ai_provider` to `provider`
// - Typo tolerance, agent step delay, network timeout, storage backend and
//   log level became configurable
type ConfigV1 struct {
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
