package rules

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/guestdesk/pkg/models"
)

// ThreadLookup resolves the thread a message belongs to
type ThreadLookup interface {
	GetThread(ctx context.Context, id string) (*models.Thread, error)
}

// ApprovalCreator records the pending approval a matched rule asks for
type ApprovalCreator interface {
	CreatePending(ctx context.Context, a *models.ApprovalRequest) error
}

// Result describes one rule that fired for a message
type Result struct {
	RuleID     string            `json:"ruleId"`
	Matched    bool              `json:"matched"`
	Action     models.RuleAction `json:"action"`
	ApprovalID string            `json:"approvalId,omitempty"`
}

// Engine evaluates auto-rules against classified guest messages
type Engine struct {
	threads   ThreadLookup
	rules     Store
	approvals ApprovalCreator
}

func NewEngine(threads ThreadLookup, rules Store, approvals ApprovalCreator) *Engine {
	return &Engine{threads: threads, rules: rules, approvals: approvals}
}

// Evaluate runs every enabled rule in the thread's scope against the message
// classification. Every match creates its own pending approval. Evaluation is
// best effort: failures are logged and never returned, and a missing thread
// yields no results.
func (e *Engine) Evaluate(ctx context.Context, threadID, messageID, intent string, risk models.RiskLevel) []Result {
	logger := log.With().Str("thread_id", threadID).Str("message_id", messageID).Logger()
	results := make([]Result, 0)

	if risk == "" {
		risk = models.RiskLow
	}

	thread, err := e.threads.GetThread(ctx, threadID)
	if err != nil || thread == nil {
		logger.Debug().Err(err).Msg("Skipping rule evaluation, thread not found")
		return results
	}

	candidates, err := e.rules.ListEnabledForScope(ctx, thread.ClientID, thread.PropertyID)
	if err != nil {
		logger.Error().Err(err).Str("client_id", thread.ClientID).Msg("Failed to load rules")
		return results
	}

	for _, rule := range candidates {
		if !InScope(rule, thread.ClientID, thread.PropertyID) || !Matches(rule, intent, risk) {
			continue
		}

		approval := &models.ApprovalRequest{
			MessageID: messageID,
			ThreadID:  threadID,
			RuleID:    rule.ID,
			Status:    models.ApprovalPending,
			Notes:     ApprovalNote(rule),
		}
		if err := e.approvals.CreatePending(ctx, approval); err != nil {
			logger.Error().Err(err).Str("rule_id", rule.ID).Msg("Failed to create approval for matched rule")
			continue
		}

		logger.Info().
			Str("rule_id", rule.ID).
			Str("action", string(rule.Action)).
			Str("approval_id", approval.ID).
			Msg("Rule matched")

		results = append(results, Result{
			RuleID:     rule.ID,
			Matched:    true,
			Action:     rule.Action,
			ApprovalID: approval.ID,
		})
	}

	return results
}
