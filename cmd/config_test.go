package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInitThenValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guestdesk.toml")

	out, err := runApp(t, "config", "init", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote sample configuration to "+path)

	_, err = runApp(t, "config", "init", "-o", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	out, err = runApp(t, "--config", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "classifier: openai/gpt-4o-mini")
	assert.Contains(t, out, "replies:    log only (broker disabled)")
	assert.Contains(t, out, "rule cache: none (rules read from postgres)")
	assert.Contains(t, out, "configuration is valid")
	assert.NotContains(t, out, "change-me")
	assert.NotContains(t, out, "your-api-key")
}

func TestConfigValidateRejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guestdesk.toml")
	require.NoError(t, os.WriteFile(path, []byte("[database]\nurl = \"postgres://localhost/guestdesk\"\n\n[ai]\nprovider = \"watson\"\n"), 0o644))

	_, err := runApp(t, "-c", path, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported AI provider: watson")
}

func TestConfigValidateWithBrokerAndRedis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "guestdesk.toml")
	body := `[database]
url = "postgres://localhost/guestdesk"

[ai]
provider = "ollama"
model = "llama3"

[broker]
enabled = true
url = "amqp://localhost:5672/"

[cache]
redis_url = "redis://localhost:6379/0"
rule_ttl = "1m"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	out, err := runApp(t, "-c", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, `replies:    amqp exchange "guestdesk.outbound" key "reply.dispatch"`)
	assert.Contains(t, out, "rule cache: redis, ttl 1m0s")
}
