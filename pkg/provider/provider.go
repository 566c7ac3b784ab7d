// Package provider adapts remote chat-completion APIs behind a single
// interface. Callers treat every failure the same way: the reply is
// unavailable and a fallback is substituted upstream.
package provider

import (
	"context"
	"fmt"
)

// Message roles understood by all providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged entry in a conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request contains the parameters for a completion call
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response contains a completion reply
type Response struct {
	Content string
	Usage   *Usage
}

// Completer is the interface all completion providers implement.
// Complete makes exactly one attempt; retry policy belongs to callers.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// Credentials holds per-provider API keys
type Credentials struct {
	OpenAIKey    string
	AnthropicKey string
}

// New creates a completion provider by name
func New(name string, creds Credentials) (Completer, error) {
	switch name {
	case "openai":
		if creds.OpenAIKey == "" {
			return nil, fmt.Errorf("openai API key is required")
		}
		return NewOpenAI(creds.OpenAIKey), nil
	case "anthropic":
		if creds.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		return NewAnthropic(creds.AnthropicKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
