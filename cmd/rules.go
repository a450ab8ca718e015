package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/guestdesk/internal/rules"
	"github.com/guestdesk/pkg/models"
)

// RulesCommand returns offline tooling for rule definitions
func RulesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rules",
		Usage: "Work with auto-rule definitions",
		Subcommands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Validate a JSON file holding one rule or an array of rules",
				ArgsUsage: "FILE",
				Action:    runRulesCheck,
			},
		},
	}
}

func runRulesCheck(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("rule file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	defs, err := decodeRules(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	invalid := 0
	for i, r := range defs {
		if err := rules.Normalize(r); err != nil {
			invalid++
			fmt.Fprintf(c.App.Writer, "rule %d: %v\n", i+1, err)
			continue
		}
		scope := "client-wide"
		if !r.ClientWide() {
			scope = "property " + r.PropertyID
		}
		fmt.Fprintf(c.App.Writer, "rule %d: ok (%s, %s, riskMax=%s)\n", i+1, r.Action, scope, r.RiskMax)
	}
	if invalid > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d rules are invalid", invalid, len(defs)), 1)
	}
	return nil
}

// ruleFile is the operator-facing shape, matching the API request body
type ruleFile struct {
	ClientID   string                 `json:"clientId"`
	PropertyID string                 `json:"propertyId"`
	Intent     string                 `json:"intent"`
	RiskMax    string                 `json:"riskMax"`
	Conditions map[string]interface{} `json:"conditions"`
	Action     string                 `json:"action"`
	Enabled    *bool                  `json:"enabled"`
}

func decodeRules(data []byte) ([]*models.AutoRule, error) {
	var files []ruleFile
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &files); err != nil {
			return nil, err
		}
	} else {
		var one ruleFile
		if err := json.Unmarshal(data, &one); err != nil {
			return nil, err
		}
		files = []ruleFile{one}
	}

	out := make([]*models.AutoRule, 0, len(files))
	for _, f := range files {
		out = append(out, &models.AutoRule{
			ClientID:   f.ClientID,
			PropertyID: f.PropertyID,
			Intent:     f.Intent,
			RiskMax:    models.RiskLevel(f.RiskMax),
			Conditions: f.Conditions,
			Action:     models.RuleAction(f.Action),
			Enabled:    f.Enabled == nil || *f.Enabled,
		})
	}
	return out, nil
}
