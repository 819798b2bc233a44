package cmd

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersion(t *testing.T) {
	require.Contains(t, run(t, "version"), "slotbook dev")
}

func TestKeys(t *testing.T) {
	out := run(t, "keys")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for i, name := range []string{"COOKIE_HASH_KEY", "COOKIE_BLOCK_KEY", "CRED_ENC_KEY"} {
		prefix := "export " + name + "="
		require.True(t, strings.HasPrefix(lines[i], prefix), lines[i])
		key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(lines[i], prefix))
		require.NoError(t, err)
		require.Len(t, key, 32)
	}
}

func TestAccountsReadsBookingConfig(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("BOOKING_CONFIG", writeConfig(t, dir))
	t.Setenv("LOG_FILE_ENABLED", "false")

	out := run(t, "accounts")
	require.Contains(t, out, "alice")
	require.Contains(t, out, "Badminton")
	require.Contains(t, out, "dry_run=true")
}

func TestHistoryEmpty(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATABASE_URL", "sqlite://"+dir+"/h.db")
	t.Setenv("LOG_FILE_ENABLED", "false")

	out := run(t, "history")
	require.Contains(t, out, "ACCOUNT")
}

func TestRunUnknownAccount(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("BOOKING_CONFIG", writeConfig(t, dir))
	t.Setenv("LOG_FILE_ENABLED", "false")

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--account", "nobody"})
	require.Error(t, root.Execute())
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.ini")
	const ini = `
[global]
headless_mode = true
day_delta = 7
retry_count = 1

[alice]
username = alice
password = pw
activity = Badminton
start_time = 17:00
`
	require.NoError(t, os.WriteFile(path, []byte(ini), 0o600))
	return path
}
