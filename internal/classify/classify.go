package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"golang.org/x/time/rate"

	"github.com/guestdesk/internal/llm"
	"github.com/guestdesk/pkg/models"
)

// ErrUpstreamUnavailable marks a classification that fell back to the degraded default
var ErrUpstreamUnavailable = errors.New("classification upstream unavailable")

// Intents the model is asked to choose from
var Intents = []string{
	"checkin",
	"checkout",
	"question",
	"complaint",
	"cancellation",
	"booking_inquiry",
	"maintenance",
	"amenity_request",
	"other",
}

var urgencies = map[string]bool{"low": true, "normal": true, "high": true, "urgent": true}

const (
	IntentOther     = "other"
	UrgencyNormal   = "normal"
	summaryLimit    = 200
	historyInPrompt = 3
)

// Context is what the model sees besides the message itself
type Context struct {
	GuestName        string
	PropertyName     string
	PropertyAddress  string
	PreviousMessages []*models.Message
	KnowledgeBase    []*models.KbEntry
}

// Result is a structured classification. Degraded results carry Err and
// must not be persisted as an Analysis.
type Result struct {
	Intent         string           `json:"intent"`
	Risk           models.RiskLevel `json:"risk"`
	Urgency        string           `json:"urgency"`
	Summary        string           `json:"summary"`
	SuggestedReply string           `json:"suggestedReply"`
	Confidence     float64          `json:"confidence"`
	Degraded       bool             `json:"degraded"`
	Err            error            `json:"-"`
}

// Analysis converts a non-degraded result into the record stored for msg
func (r Result) Analysis(msg *models.Message) *models.Analysis {
	return &models.Analysis{
		MessageID:      msg.ID,
		ThreadID:       msg.ThreadID,
		Intent:         r.Intent,
		Risk:           r.Risk,
		Urgency:        r.Urgency,
		SuggestedReply: r.SuggestedReply,
		ThreadSummary:  r.Summary,
		Confidence:     r.Confidence,
	}
}

// Generator produces a completion for a single prompt; *llm.Connector implements it
type Generator interface {
	Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Gateway classifies guest messages through a language model. Calls are rate
// limited and bounded by a timeout; any failure yields the degraded default.
type Gateway struct {
	gen     Generator
	limiter *rate.Limiter
	timeout time.Duration
}

func NewGateway(gen Generator, opts Options) *Gateway {
	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		if opts.RequestsPerSecond > 1 {
			burst = int(opts.RequestsPerSecond)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Gateway{gen: gen, limiter: rate.NewLimiter(limit, burst), timeout: timeout}
}

// Classify never returns an error; check Result.Degraded instead
func (g *Gateway) Classify(ctx context.Context, text string, c Context) Result {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return Degraded(text, fmt.Errorf("%w: rate limit wait: %v", ErrUpstreamUnavailable, err))
	}

	started := time.Now()
	raw, err := g.gen.Call(ctx, BuildPrompt(text, c))
	if err != nil {
		log.Warn().Err(err).Dur("elapsed", time.Since(started)).Msg("Classification call failed")
		return Degraded(text, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err))
	}

	var parsed struct {
		Intent         string  `json:"intent"`
		Risk           string  `json:"risk"`
		Urgency        string  `json:"urgency"`
		Summary        string  `json:"summary"`
		SuggestedReply string  `json:"suggestedReply"`
		Confidence     float64 `json:"confidence"`
	}
	if _, err := llm.DecodeResponse(raw, &parsed); err != nil {
		log.Warn().Err(err).Msg("Classification response could not be decoded")
		return Degraded(text, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err))
	}

	log.Debug().
		Str("intent", parsed.Intent).
		Str("risk", parsed.Risk).
		Dur("elapsed", time.Since(started)).
		Msg("Message classified")

	return normalize(text, Result{
		Intent:         parsed.Intent,
		Risk:           models.RiskLevel(parsed.Risk),
		Urgency:        parsed.Urgency,
		Summary:        parsed.Summary,
		SuggestedReply: parsed.SuggestedReply,
		Confidence:     parsed.Confidence,
	})
}

// Degraded is the fallback used when the model cannot be reached or understood
func Degraded(text string, err error) Result {
	return Result{
		Intent:   IntentOther,
		Risk:     models.RiskMedium,
		Urgency:  UrgencyNormal,
		Summary:  truncate(text, summaryLimit),
		Degraded: true,
		Err:      err,
	}
}

// normalize fills missing fields and maps unknown values onto safe defaults
func normalize(text string, r Result) Result {
	r.Intent = strings.ToLower(strings.TrimSpace(r.Intent))
	if !knownIntent(r.Intent) {
		r.Intent = IntentOther
	}
	if risk, ok := models.ParseRiskLevel(string(r.Risk)); ok {
		r.Risk = risk
	} else {
		r.Risk = models.RiskMedium
	}
	r.Urgency = strings.ToLower(strings.TrimSpace(r.Urgency))
	if !urgencies[r.Urgency] {
		r.Urgency = UrgencyNormal
	}
	if strings.TrimSpace(r.Summary) == "" {
		r.Summary = truncate(text, summaryLimit)
	}
	r.SuggestedReply = strings.TrimSpace(r.SuggestedReply)
	switch {
	case r.Confidence <= 0:
		r.Confidence = 0.5
	case r.Confidence > 1:
		r.Confidence = 1
	}
	return r
}

func knownIntent(intent string) bool {
	for _, i := range Intents {
		if i == intent {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
