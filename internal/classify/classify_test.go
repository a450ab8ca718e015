package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/guestdesk/pkg/models"
)

type fakeGenerator struct {
	reply  string
	err    error
	delay  time.Duration
	prompt string
}

func (f *fakeGenerator) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	f.prompt = prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func TestClassify_ParsesModelOutput(t *testing.T) {
	gen := &fakeGenerator{reply: "```json\n" + `{"intent": "Cancellation", "risk": "HIGH", "urgency": "urgent",
		"summary": "Guest wants to cancel", "suggestedReply": " Sorry to hear that. ", "confidence": 0.92}` + "\n```"}
	g := NewGateway(gen, Options{Timeout: time.Second})

	res := g.Classify(context.Background(), "I need to cancel my stay", Context{GuestName: "Ana", PropertyName: "Villa"})

	assert.False(t, res.Degraded)
	assert.Equal(t, Result{
		Intent:         "cancellation",
		Risk:           models.RiskHigh,
		Urgency:        "urgent",
		Summary:        "Guest wants to cancel",
		SuggestedReply: "Sorry to hear that.",
		Confidence:     0.92,
	}, res)
}

func TestClassify_FillsDefaults(t *testing.T) {
	gen := &fakeGenerator{reply: `{"intent": "teleport", "risk": "extreme"}`}
	g := NewGateway(gen, Options{Timeout: time.Second})

	res := g.Classify(context.Background(), "Beam me up", Context{})

	assert.False(t, res.Degraded)
	assert.Equal(t, IntentOther, res.Intent)
	assert.Equal(t, models.RiskMedium, res.Risk)
	assert.Equal(t, UrgencyNormal, res.Urgency)
	assert.Equal(t, "Beam me up", res.Summary)
	assert.Equal(t, 0.5, res.Confidence)
}

func TestClassify_DegradesOnFailure(t *testing.T) {
	text := strings.Repeat("é", 250)
	tests := []struct {
		name string
		gen  *fakeGenerator
	}{
		{name: "upstream error", gen: &fakeGenerator{err: errors.New("503 service unavailable")}},
		{name: "no json", gen: &fakeGenerator{reply: "I can't help with that"}},
		{name: "timeout", gen: &fakeGenerator{reply: `{"intent": "checkin"}`, delay: time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGateway(tt.gen, Options{Timeout: 20 * time.Millisecond})

			res := g.Classify(context.Background(), text, Context{})

			assert.True(t, res.Degraded)
			assert.ErrorIs(t, res.Err, ErrUpstreamUnavailable)
			assert.Equal(t, IntentOther, res.Intent)
			assert.Equal(t, models.RiskMedium, res.Risk)
			assert.Equal(t, UrgencyNormal, res.Urgency)
			assert.Empty(t, res.SuggestedReply)
			assert.Zero(t, res.Confidence)
			assert.Equal(t, 200, len([]rune(res.Summary)))
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	var history []*models.Message
	for _, text := range []string{"one", "two", "three", "four"} {
		history = append(history, &models.Message{SenderType: models.SenderGuest, Text: text})
	}

	prompt := BuildPrompt("Where do I park?", Context{
		GuestName:        "Ana",
		PropertyName:     "Villa Sol",
		PropertyAddress:  "1 Beach Rd",
		PreviousMessages: history,
		KnowledgeBase:    []*models.KbEntry{{Title: "Parking", Content: "Two spots in the garage"}},
	})

	assert.Contains(t, prompt, "Property: Villa Sol (1 Beach Rd)")
	assert.Contains(t, prompt, "Guest: Ana")
	assert.Contains(t, prompt, "[Parking]\nTwo spots in the garage")
	assert.NotContains(t, prompt, "guest: one\n")
	assert.Contains(t, prompt, "guest: two\nguest: three\nguest: four\n")
	assert.Contains(t, prompt, "Current message:\nWhere do I park?")
	assert.Contains(t, prompt, `"checkin" | "checkout"`)
}

func TestResultAnalysis(t *testing.T) {
	res := Result{Intent: "checkin", Risk: models.RiskLow, Urgency: "low", Summary: "s", SuggestedReply: "r", Confidence: 0.7}

	a := res.Analysis(&models.Message{ID: "m1", ThreadID: "t1"})

	require.NotNil(t, a)
	assert.Equal(t, "m1", a.MessageID)
	assert.Equal(t, "t1", a.ThreadID)
	assert.Equal(t, "s", a.ThreadSummary)
	assert.Equal(t, "r", a.SuggestedReply)
}
