package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	creds := Credentials{
		OpenAIKey:    "sk-test123",
		AnthropicKey: "sk-ant-test123",
	}

	tests := []struct {
		name         string
		provider     string
		creds        Credentials
		shouldErr    bool
		expectedName string
	}{
		{"openai", "openai", creds, false, "openai"},
		{"anthropic", "anthropic", creds, false, "anthropic"},
		{"openai missing key", "openai", Credentials{}, true, ""},
		{"anthropic missing key", "anthropic", Credentials{}, true, ""},
		{"unknown provider", "gemini", creds, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.provider, tt.creds)
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectedName, c.Name())
		})
	}
}
