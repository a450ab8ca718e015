package jobqueue

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/guestdesk/internal/classify"
	"github.com/guestdesk/internal/rules"
	"github.com/guestdesk/internal/threads"
	"github.com/guestdesk/pkg/models"
)

// historyLimit is how many earlier messages are loaded as classification context
const historyLimit = 5

// MessageSource is the part of the thread store the classify job reads and writes
type MessageSource interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	GetThread(ctx context.Context, id string) (*models.Thread, error)
	GetProperty(ctx context.Context, id string) (*models.Property, error)
	RecentMessages(ctx context.Context, threadID, beforeMessageID string, limit int) ([]*models.Message, error)
	GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error)
	SaveAnalysis(ctx context.Context, a *models.Analysis) error
}

type KnowledgeSource interface {
	ForThread(ctx context.Context, t *models.Thread) ([]*models.KbEntry, error)
}

type Classifier interface {
	Classify(ctx context.Context, text string, c classify.Context) classify.Result
}

type RuleEvaluator interface {
	Evaluate(ctx context.Context, threadID, messageID, intent string, risk models.RiskLevel) []rules.Result
}

// ClassifyOutcome reports what one classify run did
type ClassifyOutcome struct {
	Skipped  string
	Degraded bool
	Analysis *models.Analysis
	Rules    []rules.Result
}

// ClassifyProcessor classifies a guest message, stores the analysis and runs
// the auto-rules against it. A degraded classification leaves the message
// unclassified and evaluates nothing.
type ClassifyProcessor struct {
	messages   MessageSource
	knowledge  KnowledgeSource
	classifier Classifier
	rules      RuleEvaluator
}

func NewClassifyProcessor(messages MessageSource, knowledge KnowledgeSource, classifier Classifier, rules RuleEvaluator) *ClassifyProcessor {
	return &ClassifyProcessor{messages: messages, knowledge: knowledge, classifier: classifier, rules: rules}
}

func (p *ClassifyProcessor) Process(ctx context.Context, messageID string) (ClassifyOutcome, error) {
	logger := log.With().Str("message_id", messageID).Logger()

	msg, err := p.messages.GetMessage(ctx, messageID)
	if err != nil {
		return ClassifyOutcome{}, fmt.Errorf("load message: %w", err)
	}
	if msg.SenderType != models.SenderGuest {
		return ClassifyOutcome{Skipped: "not a guest message"}, nil
	}
	if _, err := p.messages.GetAnalysis(ctx, messageID); err == nil {
		return ClassifyOutcome{Skipped: "already analyzed"}, nil
	} else if !errors.Is(err, threads.ErrNotFound) {
		return ClassifyOutcome{}, fmt.Errorf("load analysis: %w", err)
	}

	thread, err := p.messages.GetThread(ctx, msg.ThreadID)
	if err != nil {
		return ClassifyOutcome{}, fmt.Errorf("load thread: %w", err)
	}
	logger = logger.With().Str("thread_id", thread.ID).Logger()

	cctx := p.buildContext(ctx, thread, msg)
	result := p.classifier.Classify(ctx, msg.Text, cctx)
	if result.Degraded {
		logger.Warn().Err(result.Err).Msg("Classification degraded, message left unclassified")
		return ClassifyOutcome{Degraded: true}, nil
	}

	analysis := result.Analysis(msg)
	if err := p.messages.SaveAnalysis(ctx, analysis); err != nil {
		if errors.Is(err, threads.ErrAlreadyAnalyzed) {
			return ClassifyOutcome{Skipped: "already analyzed"}, nil
		}
		return ClassifyOutcome{}, fmt.Errorf("save analysis: %w", err)
	}

	fired := p.rules.Evaluate(ctx, thread.ID, msg.ID, analysis.Intent, analysis.Risk)
	logger.Info().
		Str("intent", analysis.Intent).
		Str("risk", string(analysis.Risk)).
		Int("rules_fired", len(fired)).
		Msg("Message classified")

	return ClassifyOutcome{Analysis: analysis, Rules: fired}, nil
}

// buildContext gathers the property, earlier messages and knowledge base
// entries. Missing context degrades the prompt, not the job.
func (p *ClassifyProcessor) buildContext(ctx context.Context, thread *models.Thread, msg *models.Message) classify.Context {
	logger := log.With().Str("thread_id", thread.ID).Str("message_id", msg.ID).Logger()
	c := classify.Context{GuestName: thread.GuestName}

	if prop, err := p.messages.GetProperty(ctx, thread.PropertyID); err == nil {
		c.PropertyName = prop.Name
		c.PropertyAddress = prop.Address
	} else {
		logger.Debug().Err(err).Msg("Property not available for classification context")
	}

	if history, err := p.messages.RecentMessages(ctx, thread.ID, msg.ID, historyLimit); err == nil {
		c.PreviousMessages = history
	} else {
		logger.Debug().Err(err).Msg("History not available for classification context")
	}

	if p.knowledge != nil {
		if entries, err := p.knowledge.ForThread(ctx, thread); err == nil {
			c.KnowledgeBase = entries
		} else {
			logger.Debug().Err(err).Msg("Knowledge base not available for classification context")
		}
	}
	return c
}
