package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	require.Equal(t, slog.LevelWarn, ParseLevel(" warning "))
	require.Equal(t, slog.LevelError, ParseLevel("ERROR"))
	require.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNewWritesFile(t *testing.T) {
	dir := t.TempDir()
	log, closer, err := New(Config{Level: slog.LevelInfo, EnableFile: true, LogDir: dir, LogFile: "test.log"})
	require.NoError(t, err)

	log.Info("booking started", "account", "alice")
	log.Debug("hidden")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	require.Contains(t, string(b), "booking started")
	require.Contains(t, string(b), "account=alice")
	require.NotContains(t, string(b), "hidden")
}
