package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWritesStructuredJSON(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupWithOptions("escrowd", "test", Options{Level: "debug", Output: &buf})
	logger.Debug("probe", "offer", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "probe", line["message"])
	require.Equal(t, "DEBUG", line["severity"])
	require.Equal(t, "escrowd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "abc", line["offer"])
	require.Contains(t, line, "timestamp")
}

func TestSetupFiltersBelowLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := SetupWithOptions("escrowd", "", Options{Level: "warn", Output: &buf})
	logger.Info("hidden")
	require.Zero(t, buf.Len())
	logger.Warn("shown")
	require.Contains(t, buf.String(), "shown")
	require.NotContains(t, buf.String(), `"env"`)
}

func TestSetupMirrorsToRotatedFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "escrowd.log")
	var buf bytes.Buffer
	logger := SetupWithOptions("escrowd", "", Options{File: path, MaxSizeMB: 1, Output: &buf})
	logger.Info("persisted")

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "persisted")
	require.Contains(t, buf.String(), "persisted")
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	require.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
