package rules

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guestdesk/pkg/models"
)

func TestParseConditions(t *testing.T) {
	c, err := ParseConditions(map[string]interface{}{"templateId": " tpl-1 ", "language": "de"})
	require.NoError(t, err)
	assert.Equal(t, "tpl-1", c.TemplateID)

	want := map[string]interface{}{"templateId": "tpl-1", "language": "de"}
	if diff := cmp.Diff(want, c.Map()); diff != "" {
		t.Errorf("Map() mismatch (-want +got):\n%s", diff)
	}

	_, err = ParseConditions(map[string]interface{}{"templateId": 42})
	assert.ErrorIs(t, err, ErrInvalidRule)
}

func TestNormalize_AppliesDefaults(t *testing.T) {
	r := &models.AutoRule{ClientID: "C", Action: models.ActionQueue}

	require.NoError(t, Normalize(r))
	assert.Equal(t, models.RiskLow, r.RiskMax)
	assert.NotNil(t, r.Conditions)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    models.AutoRule
		wantErr bool
	}{
		{"valid queue", models.AutoRule{ClientID: "C", Action: models.ActionQueue, RiskMax: models.RiskHigh}, false},
		{"risk is normalized", models.AutoRule{ClientID: "C", Action: models.ActionQueue, RiskMax: "Medium"}, false},
		{"missing client", models.AutoRule{Action: models.ActionQueue}, true},
		{"unknown action", models.AutoRule{ClientID: "C", Action: "escalate"}, true},
		{"unknown risk", models.AutoRule{ClientID: "C", Action: models.ActionQueue, RiskMax: "severe"}, true},
		{"template on queue", models.AutoRule{ClientID: "C", Action: models.ActionQueue, Conditions: map[string]interface{}{"templateId": "x"}}, true},
		{"template on auto_send", models.AutoRule{ClientID: "C", Action: models.ActionAutoSend, Conditions: map[string]interface{}{"templateId": "x"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.rule)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRule)
				return
			}
			assert.NoError(t, err)
		})
	}
}
