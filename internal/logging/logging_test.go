package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"trace":   LevelTrace,
		"DEBUG":   slog.LevelDebug,
		" info ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"fatal":   LevelFatal,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestForServiceAddsAttribute(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var structured, human bytes.Buffer
	structuredLevel.Set(slog.LevelDebug)
	SetOutput(&structured, &human)

	ForService("audiocore").Info("session started", "id", "abc")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(structured.Bytes(), &entry))
	assert.Equal(t, "audiocore", entry["service"])
	assert.Equal(t, "session started", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestTraceLevelName(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		SetLevel(slog.LevelInfo)
	})

	var structured, human bytes.Buffer
	SetOutput(&structured, &human)
	SetLevel(LevelTrace)

	Trace("tick")

	assert.Contains(t, structured.String(), `"level":"TRACE"`)
	assert.Empty(t, human.String())
}

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "bob.log")

	logger, closeFn, err := NewFileLogger(path, "serve", slog.LevelInfo, FileConfig{MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Warn("visible", "key", 1)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), `"service":"serve"`)
	assert.Contains(t, string(data), `"level":"WARN"`)
}
