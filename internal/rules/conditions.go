package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/guestdesk/pkg/models"
)

var (
	ErrNotFound    = errors.New("rule not found")
	ErrInvalidRule = errors.New("invalid rule")
)

const templateIDKey = "templateId"

// Conditions is the typed view over AutoRule.Conditions. Known keys are lifted
// into fields; anything else is carried through untouched in Extra.
type Conditions struct {
	TemplateID string
	Extra      map[string]interface{}
}

// ParseConditions reads the stored condition map
func ParseConditions(raw map[string]interface{}) (Conditions, error) {
	c := Conditions{Extra: map[string]interface{}{}}
	for k, v := range raw {
		if k != templateIDKey {
			c.Extra[k] = v
			continue
		}
		switch tv := v.(type) {
		case nil:
		case string:
			c.TemplateID = strings.TrimSpace(tv)
		default:
			return Conditions{}, fmt.Errorf("%w: %s must be a string", ErrInvalidRule, templateIDKey)
		}
	}
	return c, nil
}

// Map renders the conditions back to the stored form
func (c Conditions) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(c.Extra)+1)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.TemplateID != "" {
		out[templateIDKey] = c.TemplateID
	}
	return out
}

// Normalize applies creation defaults and validates r in place
func Normalize(r *models.AutoRule) error {
	if r.RiskMax == "" {
		r.RiskMax = models.RiskLow
	}
	if r.Conditions == nil {
		r.Conditions = map[string]interface{}{}
	}
	return Validate(r)
}

// Validate checks a rule definition before it is written
func Validate(r *models.AutoRule) error {
	if strings.TrimSpace(r.ClientID) == "" {
		return fmt.Errorf("%w: clientId is required", ErrInvalidRule)
	}
	if !r.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidRule, r.Action)
	}
	if r.RiskMax != "" {
		level, ok := models.ParseRiskLevel(string(r.RiskMax))
		if !ok {
			return fmt.Errorf("%w: unknown riskMax %q", ErrInvalidRule, r.RiskMax)
		}
		r.RiskMax = level
	}

	conds, err := ParseConditions(r.Conditions)
	if err != nil {
		return err
	}
	if conds.TemplateID != "" && r.Action == models.ActionQueue {
		return fmt.Errorf("%w: %s only applies to template and auto_send actions", ErrInvalidRule, templateIDKey)
	}
	r.Conditions = conds.Map()
	return nil
}
