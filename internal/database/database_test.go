package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaDeclaresEveryTable(t *testing.T) {
	for _, table := range []string{
		"properties", "threads", "messages", "analyses", "auto_rules",
		"approval_requests", "send_logs", "audit_logs", "kb_entries",
	} {
		assert.Contains(t, Schema(), "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestResolveURL(t *testing.T) {
	got, err := ResolveURL("  postgres://localhost/guestdesk  ")
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/guestdesk", got)

	t.Setenv("GUESTDESK_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "postgres://env/guestdesk")
	got, err = ResolveURL("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/guestdesk", got)

	t.Setenv("GUESTDESK_DATABASE_URL", "postgres://prefixed/guestdesk")
	got, err = ResolveURL("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://prefixed/guestdesk", got)
}

func TestLoadDatabaseURLFromEnvFile(t *testing.T) {
	t.Setenv("GUESTDESK_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("# local\nexport DATABASE_URL='postgres://file/guestdesk'\nbroken line\n"), 0o644))
	chdir(t, nested)

	got, err := loadDatabaseURL()
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/guestdesk", got)
}

func TestReadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	body := "GUESTDESK_DATABASE_URL=\"postgres://a/b?sslmode=disable\"\n  REDIS = redis://x \n#DATABASE_URL=skip\nEMPTY=\n=novalue\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	vars, err := readEnvFile(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"GUESTDESK_DATABASE_URL": "postgres://a/b?sslmode=disable",
		"REDIS":                  "redis://x",
		"EMPTY":                  "",
	}, vars)
}

func TestLoadDatabaseURLEmptyInEnvFile(t *testing.T) {
	t.Setenv("GUESTDESK_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DATABASE_URL=\n"), 0o644))
	chdir(t, dir)

	_, err := loadDatabaseURL()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is empty")
}

func TestMigrate(t *testing.T) {
	url := os.Getenv("GUESTDESK_TEST_DATABASE_URL")
	if testing.Short() || url == "" {
		t.Skip("GUESTDESK_TEST_DATABASE_URL not set")
	}
	db, err := NewDB(context.Background(), url, 2)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM information_schema.tables WHERE table_name = ANY(string_to_array($1, ','))`,
		strings.Join([]string{"threads", "approval_requests", "auto_rules"}, ",")).Scan(&n))
	assert.Equal(t, 3, n)
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (testing.T.Chdir requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
