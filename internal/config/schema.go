package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// configSchema type-checks the config file. Unknown keys are allowed so
// older configs keep loading; value types are not.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "server": {
      "type": "object",
      "properties": {
        "host": {"type": "string"},
        "port": {"type": "integer"},
        "typing_delay_ms": {"type": "integer", "minimum": 0},
        "typing_delay_cap_ms": {"type": "integer", "minimum": 0}
      }
    },
    "provider": {
      "type": "object",
      "properties": {
        "name": {"type": "string", "enum": ["openai", "anthropic"]},
        "openai_key": {"type": "string"},
        "anthropic_key": {"type": "string"},
        "model": {"type": "string"},
        "temperature": {"type": "number", "minimum": 0, "maximum": 2},
        "max_tokens": {"type": "integer", "minimum": 1}
      }
    },
    "persona": {
      "type": "object",
      "properties": {
        "reveal_facts": {"type": "boolean"}
      }
    },
    "archive": {
      "type": "object",
      "properties": {
        "db_path": {"type": "string"}
      }
    },
    "sessions": {
      "type": "object",
      "properties": {
        "idle_timeout_min": {"type": "integer", "minimum": 0},
        "sweep_schedule": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "properties": {
        "level": {"type": "string"},
        "file": {"type": "string"},
        "max_size": {"type": "integer"},
        "max_age": {"type": "integer"},
        "compress": {"type": "boolean"},
        "redaction": {"type": "boolean"}
      }
    },
    "data_dir": {"type": "string"}
  }
}`

// ValidateSchema validates a raw JSON config document against the schema
func ValidateSchema(raw []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return fmt.Errorf("schema violations: %s", strings.Join(problems, "; "))
}
