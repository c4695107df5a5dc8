package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"Warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := ParseLogLevel("verbose")
	assert.Error(t, err)
	assert.Equal(t, DefaultLogLevel, got)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo, true)
	logger.Debug("hidden")
	logger.Info("resized", slog.Int("capacity", 64))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var record map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &record))
	assert.Equal(t, "resized", record["message"])
	assert.Equal(t, float64(64), record["capacity"])
	assert.Equal(t, "info", record["level"])
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelDebug, false).Debug("tree bin", slog.Int("size", 9))
	assert.Contains(t, buf.String(), "tree bin")
	assert.Contains(t, buf.String(), "size")
}
