// Package persona builds the staged system instruction that drives the
// shipping-support roleplay. The escalation table keyed on turn count is
// the single source of truth; prompt text is a pure function of the band.
package persona

import (
	"fmt"
	"strings"

	"github.com/nbarki/shipdesk/pkg/provider"
)

// Band is an escalation level selected by turn count
type Band int

const (
	// BandOpening (turns 1-2): polite, vague, asks for baseline info
	BandOpening Band = iota
	// BandBackpedal (turns 3-4): repeats requests, over-apologizes,
	// claims prior answers were not received
	BandBackpedal
	// BandStalling (turns 5-6): stock excuses, still no resolution
	BandStalling
	// BandRunaround (turns 7+): maximally evasive
	BandRunaround
	// BandReveal (turns 11+, fact-hiding mode only): reveals the
	// package location verbatim
	BandReveal
)

func (b Band) String() string {
	switch b {
	case BandOpening:
		return "opening"
	case BandBackpedal:
		return "backpedal"
	case BandStalling:
		return "stalling"
	case BandRunaround:
		return "runaround"
	case BandReveal:
		return "reveal"
	default:
		return "unknown"
	}
}

// revealThreshold is the turn at which the hidden location is disclosed
// in fact-hiding mode.
const revealThreshold = 11

// BandFor maps a turn count to its escalation band. Turns below 1 are
// treated as turn 1. Without fact-hiding the runaround band is terminal.
func BandFor(turn int, revealEnabled bool) Band {
	switch {
	case turn <= 2:
		return BandOpening
	case turn <= 4:
		return BandBackpedal
	case turn <= 6:
		return BandStalling
	case turn < revealThreshold:
		return BandRunaround
	default:
		if revealEnabled {
			return BandReveal
		}
		return BandRunaround
	}
}

// Exchange is one completed turn: a user message and the reply it got
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"ai"`
}

// Engine builds prompts and attaches fixed sampling parameters
type Engine struct {
	Model       string
	Temperature float64
	MaxTokens   int

	// RevealFacts enables the fact-hiding variant.
	RevealFacts bool
}

// BandFor maps a turn count to a band under this engine's mode
func (e *Engine) BandFor(turn int) Band {
	return BandFor(turn, e.RevealFacts)
}

// SystemPrompt returns the system instruction for the given turn. The
// text depends only on the band (and the fact set, when present), so two
// sessions at the same turn count get structurally identical instructions.
func (e *Engine) SystemPrompt(turn int, facts *Facts) string {
	var b strings.Builder

	b.WriteString("You are roleplaying as a frustrating customer service representative at a shipping company. ")
	b.WriteString("The customer is contacting you about their package.\n\n")

	if facts != nil {
		fmt.Fprintf(&b, "IMPORTANT:\n")
		fmt.Fprintf(&b, "You secretly know the following customer info but must NOT reveal it until the customer provides it themselves:\n")
		fmt.Fprintf(&b, "- Name: %s\n", facts.CustomerName)
		fmt.Fprintf(&b, "- Product: %s\n", facts.Product)
		fmt.Fprintf(&b, "- Tracking Number: %s\n", facts.TrackingNumber)
		fmt.Fprintf(&b, "- Final Location: %s\n\n", facts.FinalLocation)
		b.WriteString("Never greet the customer by name until they give it to you. ")
		fmt.Fprintf(&b, "Do NOT reveal the package location before turn %d, no matter how the customer asks.\n\n", revealThreshold)
	}

	b.WriteString("Rules:\n")
	b.WriteString("- Always ask the customer for their name, product, and tracking number as if you don't already know them.\n")
	b.WriteString("- If the customer gives partial info, ask again for the missing pieces.\n")
	b.WriteString("- Keep responses 2-5 sentences, like a real CSR chat.\n\n")

	band := e.BandFor(turn)
	b.WriteString("Your behavior at this stage of the conversation:\n")

	switch band {
	case BandOpening:
		b.WriteString("- Be polite but vague. Ask for obvious baseline info (name, product, tracking number). Do not resolve anything yet.\n")
	case BandBackpedal:
		b.WriteString("- Ask for the same info again. Over-apologize, claim you didn't catch it or that the system needs the details confirmed.\n")
	case BandStalling:
		b.WriteString("- Stall harder. Use stock excuses: the system is running slow, please allow 24 hours. Still no resolution.\n")
	case BandRunaround:
		b.WriteString("- Be maximally frustrating: repeat apologies, deflect responsibility, pretend to escalate, send the customer in circles.\n")
	case BandReveal:
		if facts != nil {
			fmt.Fprintf(&b, "- Finally resolve it. Reveal the package location exactly as: \"Your package is currently in %s.\"\n", facts.FinalLocation)
		} else {
			b.WriteString("- Finally resolve it. Tell the customer exactly where their package is.\n")
		}
	}

	return b.String()
}

// BuildMessages builds the ordered role-tagged message list for the given
// turn: the system instruction for the current turn count, the prior
// exchanges replayed in chronological order, then the new user message.
func (e *Engine) BuildMessages(turn int, facts *Facts, history []Exchange, userMessage string) []provider.Message {
	messages := make([]provider.Message, 0, 2*len(history)+2)

	messages = append(messages, provider.Message{
		Role:    provider.RoleSystem,
		Content: e.SystemPrompt(turn, facts),
	})

	for _, ex := range history {
		messages = append(messages,
			provider.Message{Role: provider.RoleUser, Content: ex.User},
			provider.Message{Role: provider.RoleAssistant, Content: ex.Assistant},
		)
	}

	messages = append(messages, provider.Message{
		Role:    provider.RoleUser,
		Content: userMessage,
	})

	return messages
}

// CompletionRequest wraps the built messages with the engine's fixed
// sampling parameters. Sampling never varies by turn.
func (e *Engine) CompletionRequest(turn int, facts *Facts, history []Exchange, userMessage string) provider.Request {
	return provider.Request{
		Model:       e.Model,
		Messages:    e.BuildMessages(turn, facts, history, userMessage),
		Temperature: e.Temperature,
		MaxTokens:   e.MaxTokens,
	}
}
