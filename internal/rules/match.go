package rules

import (
	"fmt"

	"github.com/guestdesk/pkg/models"
)

// InScope reports whether r applies to a thread owned by clientID under propertyID
func InScope(r *models.AutoRule, clientID, propertyID string) bool {
	if r.ClientID != clientID {
		return false
	}
	return r.ClientWide() || r.PropertyID == propertyID
}

// IntentMatches treats an unset rule intent as a wildcard; otherwise the match is exact
func IntentMatches(r *models.AutoRule, intent string) bool {
	return r.Intent == "" || r.Intent == intent
}

// RiskMatches holds when risk is at or below the rule ceiling. Unknown tiers on
// either side never match.
func RiskMatches(r *models.AutoRule, risk models.RiskLevel) bool {
	if r.RiskMax == "" {
		return true
	}
	ceiling := r.RiskMax.Rank()
	got := risk.Rank()
	if ceiling < 0 || got < 0 {
		return false
	}
	return got <= ceiling
}

// Matches combines the intent and risk predicates
func Matches(r *models.AutoRule, intent string, risk models.RiskLevel) bool {
	return r.Enabled && IntentMatches(r, intent) && RiskMatches(r, risk)
}

// ApprovalNote is the reviewer-facing note stored on approvals a rule creates
func ApprovalNote(r *models.AutoRule) string {
	switch r.Action {
	case models.ActionQueue:
		intent := r.Intent
		if intent == "" {
			intent = "any intent"
		}
		scope := "client-wide"
		if !r.ClientWide() {
			scope = "scoped"
		}
		return fmt.Sprintf("Auto-flagged by rule: %s (Property: %s)", intent, scope)
	default:
		conds, _ := ParseConditions(r.Conditions)
		if conds.TemplateID != "" {
			return "Suggested template: " + conds.TemplateID
		}
		return fmt.Sprintf("Rule triggered (%s)", r.Action)
	}
}
