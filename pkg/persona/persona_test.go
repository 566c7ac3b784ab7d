package persona

import (
	"fmt"
	"strings"
	"testing"

	"github.com/nbarki/shipdesk/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(reveal bool) *Engine {
	return &Engine{
		Model:       "gpt-4o-mini",
		Temperature: 0.85,
		MaxTokens:   200,
		RevealFacts: reveal,
	}
}

func TestBandFor(t *testing.T) {
	tests := []struct {
		turn   int
		reveal bool
		want   Band
	}{
		{1, false, BandOpening},
		{2, false, BandOpening},
		{3, false, BandBackpedal},
		{4, false, BandBackpedal},
		{5, false, BandStalling},
		{6, false, BandStalling},
		{7, false, BandRunaround},
		{10, false, BandRunaround},
		{11, false, BandRunaround},
		{99, false, BandRunaround},
		{10, true, BandRunaround},
		{11, true, BandReveal},
		{25, true, BandReveal},
		// Out-of-range turns clamp into the opening band
		{0, false, BandOpening},
		{-3, false, BandOpening},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("turn_%d_reveal_%v", tt.turn, tt.reveal), func(t *testing.T) {
			assert.Equal(t, tt.want, BandFor(tt.turn, tt.reveal))
		})
	}
}

func TestSystemPromptDeterministicPerBand(t *testing.T) {
	e := testEngine(false)

	// Same band, same text
	assert.Equal(t, e.SystemPrompt(1, nil), e.SystemPrompt(2, nil))
	assert.Equal(t, e.SystemPrompt(3, nil), e.SystemPrompt(4, nil))

	// Two sessions at the same turn count get identical instructions
	other := testEngine(false)
	assert.Equal(t, e.SystemPrompt(7, nil), other.SystemPrompt(7, nil))
}

func TestSystemPromptDiffersAcrossBands(t *testing.T) {
	e := testEngine(false)

	turn1 := e.SystemPrompt(1, nil)
	turn7 := e.SystemPrompt(7, nil)

	assert.NotEqual(t, turn1, turn7)
	assert.Contains(t, turn1, "polite")
	assert.Contains(t, turn7, "maximally frustrating")
}

func TestSystemPromptHidesFactsBeforeRevealBand(t *testing.T) {
	e := testEngine(true)
	facts := DefaultFacts()

	for _, turn := range []int{1, 4, 6, 10} {
		prompt := e.SystemPrompt(turn, facts)
		// The facts are embedded as secret knowledge with an explicit
		// withhold instruction, not in the behavior line.
		assert.Contains(t, prompt, facts.FinalLocation)
		assert.Contains(t, prompt, "must NOT reveal")
		assert.NotContains(t, prompt, "Finally resolve it")
	}
}

func TestSystemPromptRevealsLocationAtThreshold(t *testing.T) {
	e := testEngine(true)
	facts := DefaultFacts()

	prompt := e.SystemPrompt(11, facts)
	assert.Contains(t, prompt, fmt.Sprintf("Your package is currently in %s.", facts.FinalLocation))
}

func TestSystemPromptWithoutFactsHasNoSecretBlock(t *testing.T) {
	e := testEngine(false)

	prompt := e.SystemPrompt(1, nil)
	assert.NotContains(t, prompt, "secretly know")
	assert.NotContains(t, prompt, "Springfield")
}

func TestBuildMessagesOrder(t *testing.T) {
	e := testEngine(false)

	history := []Exchange{
		{User: "where is my package", Assistant: "Could I get your name please?"},
		{User: "Alex", Assistant: "And the tracking number?"},
	}

	msgs := e.BuildMessages(3, nil, history, "739182645")
	require.Len(t, msgs, 6)

	assert.Equal(t, provider.RoleSystem, msgs[0].Role)
	assert.Equal(t, provider.RoleUser, msgs[1].Role)
	assert.Equal(t, "where is my package", msgs[1].Content)
	assert.Equal(t, provider.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Could I get your name please?", msgs[2].Content)
	assert.Equal(t, provider.RoleUser, msgs[3].Role)
	assert.Equal(t, "Alex", msgs[3].Content)
	assert.Equal(t, provider.RoleAssistant, msgs[4].Role)
	assert.Equal(t, provider.RoleUser, msgs[5].Role)
	assert.Equal(t, "739182645", msgs[5].Content)
}

func TestBuildMessagesFirstTurnHasNoHistory(t *testing.T) {
	e := testEngine(false)

	msgs := e.BuildMessages(1, nil, nil, "hello")
	require.Len(t, msgs, 2)
	assert.Equal(t, provider.RoleSystem, msgs[0].Role)
	assert.Equal(t, "hello", msgs[1].Content)
}

func TestCompletionRequestAttachesFixedSampling(t *testing.T) {
	e := testEngine(false)

	req1 := e.CompletionRequest(1, nil, nil, "hi")
	req9 := e.CompletionRequest(9, nil, makeHistory(8), "hi again")

	assert.Equal(t, "gpt-4o-mini", req1.Model)
	assert.InDelta(t, 0.85, req1.Temperature, 0.001)
	assert.Equal(t, 200, req1.MaxTokens)

	// Sampling parameters do not vary by turn
	assert.Equal(t, req1.Model, req9.Model)
	assert.Equal(t, req1.Temperature, req9.Temperature)
	assert.Equal(t, req1.MaxTokens, req9.MaxTokens)
}

func makeHistory(n int) []Exchange {
	history := make([]Exchange, n)
	for i := range history {
		history[i] = Exchange{
			User:      fmt.Sprintf("user message %d", i+1),
			Assistant: fmt.Sprintf("assistant reply %d", i+1),
		}
	}
	return history
}

func TestHistoryReconstructionExactness(t *testing.T) {
	e := testEngine(false)

	for _, k := range []int{1, 2, 5, 12} {
		history := makeHistory(k - 1)
		msgs := e.BuildMessages(k, nil, history, "new message")

		// system + (k-1) pairs + new user message
		require.Len(t, msgs, 1+2*(k-1)+1)

		for i := 0; i < k-1; i++ {
			assert.Equal(t, fmt.Sprintf("user message %d", i+1), msgs[1+2*i].Content)
			assert.Equal(t, fmt.Sprintf("assistant reply %d", i+1), msgs[2+2*i].Content)
		}
		assert.Equal(t, "new message", msgs[len(msgs)-1].Content)
	}
}

func TestDefaultFacts(t *testing.T) {
	f := DefaultFacts()
	assert.Equal(t, "Alex Johnson", f.CustomerName)
	assert.Equal(t, "Smart Fitness Watch", f.Product)
	assert.Equal(t, "739182645", f.TrackingNumber)
	assert.Equal(t, "Springfield, IL", f.FinalLocation)
}

func TestGenerateFacts(t *testing.T) {
	f := GenerateFacts()

	assert.Contains(t, customerNames, f.CustomerName)
	assert.Contains(t, products, f.Product)
	assert.Contains(t, locations, f.FinalLocation)

	require.Len(t, f.TrackingNumber, 9)
	assert.NotEqual(t, byte('0'), f.TrackingNumber[0])
	for _, c := range f.TrackingNumber {
		assert.True(t, c >= '0' && c <= '9')
	}
}

func TestBandString(t *testing.T) {
	assert.Equal(t, "opening", BandOpening.String())
	assert.Equal(t, "reveal", BandReveal.String())
	assert.Equal(t, "unknown", Band(42).String())
}

func TestSystemPromptStallingBand(t *testing.T) {
	e := testEngine(false)

	p5 := e.SystemPrompt(5, nil)
	assert.Contains(t, p5, "24 hours")
	assert.True(t, strings.Contains(p5, "running slow"))
}
