package config

import (
	"fmt"
	"strings"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}

	return nil
}

// ValidateProvider validates a completion provider name
func (v *Validator) ValidateProvider(name string) error {
	validProviders := []string{"openai", "anthropic"}
	for _, valid := range validProviders {
		if name == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid provider: %s (must be one of: %s)", name, strings.Join(validProviders, ", "))
}

// ValidateModel validates a model name
func (v *Validator) ValidateModel(model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	return nil
}

// ValidatePort validates a listening port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateProvider(cfg.Provider.Name); err != nil {
		errors = append(errors, err)
	} else {
		switch cfg.Provider.Name {
		case "openai":
			if err := v.ValidateAPIKey(cfg.Provider.OpenAIKey, "openai"); err != nil {
				errors = append(errors, err)
			}
		case "anthropic":
			if err := v.ValidateAPIKey(cfg.Provider.AnthropicKey, "anthropic"); err != nil {
				errors = append(errors, err)
			}
		}
	}

	if err := v.ValidateModel(cfg.Provider.Model); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateTemperature(cfg.Provider.Temperature); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateMaxTokens(cfg.Provider.MaxTokens); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Server.TypingDelayMs < 0 {
		errors = append(errors, fmt.Errorf("typing delay cannot be negative, got %d", cfg.Server.TypingDelayMs))
	}
	if cfg.Sessions.IdleTimeoutMin < 0 {
		errors = append(errors, fmt.Errorf("idle timeout cannot be negative, got %d", cfg.Sessions.IdleTimeoutMin))
	}

	return errors
}
