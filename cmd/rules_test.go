package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/guestdesk/pkg/models"
)

func TestDecodeRules(t *testing.T) {
	single, err := decodeRules([]byte(`{"clientId":"c1","intent":"checkin","action":"queue"}`))
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.True(t, single[0].Enabled)
	assert.Equal(t, models.ActionQueue, single[0].Action)

	many, err := decodeRules([]byte(` [{"clientId":"c1","action":"template","enabled":false},{"clientId":"c2","action":"auto_send"}]`))
	require.NoError(t, err)
	require.Len(t, many, 2)
	assert.False(t, many[0].Enabled)
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := &cli.App{
		Name:           "guestdesk",
		Writer:         &out,
		ErrWriter:      &out,
		ExitErrHandler: func(*cli.Context, error) {},
		Flags:          []cli.Flag{&cli.StringFlag{Name: "config", Aliases: []string{"c"}}},
		Commands:       []*cli.Command{RulesCommand(), ConfigCommand()},
	}
	err := app.Run(append([]string{"guestdesk"}, args...))
	return out.String(), err
}

func TestRulesCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"clientId":"c1","propertyId":"p1","action":"template","conditions":{"templateId":"t1"}}]`), 0o644))
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"clientId":"c1","action":"queue","conditions":{"templateId":"t1"}},{"action":"queue"}]`), 0o644))

	out, err := runApp(t, "rules", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, "rule 1: ok (template, property p1, riskMax=low)")

	out, err = runApp(t, "rules", "check", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 of 2 rules are invalid")
	assert.Contains(t, out, "templateId only applies to template and auto_send actions")
}
