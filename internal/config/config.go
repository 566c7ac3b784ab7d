package config

import "encoding/json"

// Config represents the main shipdesk configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Completion provider
	Provider ProviderConfig `json:"provider" mapstructure:"provider"`

	// Persona engine
	Persona PersonaConfig `json:"persona" mapstructure:"persona"`

	// Transcript archive
	Archive ArchiveConfig `json:"archive" mapstructure:"archive"`

	// In-memory session store
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`

	// Simulated typing delay per reply character, in milliseconds.
	// Zero disables the delay. The total delay is capped by
	// TypingDelayCapMs so long replies cannot stall a worker.
	TypingDelayMs    int `json:"typing_delay_ms" mapstructure:"typing_delay_ms"`
	TypingDelayCapMs int `json:"typing_delay_cap_ms" mapstructure:"typing_delay_cap_ms"`
}

// ProviderConfig holds completion provider configuration
type ProviderConfig struct {
	Name         string  `json:"name" mapstructure:"name"` // openai, anthropic
	OpenAIKey    string  `json:"openai_key" mapstructure:"openai_key"`
	AnthropicKey string  `json:"anthropic_key" mapstructure:"anthropic_key"`
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// PersonaConfig holds persona engine configuration
type PersonaConfig struct {
	// RevealFacts enables the fact-hiding variant: each session gets a
	// fixed hidden fact set and the final location is revealed at turn 11+.
	RevealFacts bool `json:"reveal_facts" mapstructure:"reveal_facts"`
}

// ArchiveConfig holds transcript archive configuration
type ArchiveConfig struct {
	DBPath string `json:"db_path" mapstructure:"db_path"`
}

// SessionsConfig holds session store configuration
type SessionsConfig struct {
	// IdleTimeoutMin is the idle minutes after which a session is archived
	// and evicted by the sweeper. Zero disables the sweep.
	IdleTimeoutMin int `json:"idle_timeout_min" mapstructure:"idle_timeout_min"`

	// SweepSchedule is a cron expression for the idle sweep.
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// DefaultConfig returns a configuration with sane defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             3000,
			TypingDelayMs:    0,
			TypingDelayCapMs: 5000,
		},
		Provider: ProviderConfig{
			Name:        "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.85,
			MaxTokens:   200,
		},
		Persona: PersonaConfig{
			RevealFacts: false,
		},
		Sessions: SessionsConfig{
			IdleTimeoutMin: 30,
			SweepSchedule:  "*/5 * * * *",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// MarshalConfig serializes a config to pretty-printed JSON
func MarshalConfig(cfg *Config) ([]byte, error) {
	return json.MarshalIndent(cfg, "", "  ")
}
