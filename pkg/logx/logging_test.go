package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"loud", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, ParseLevel(tt.raw, zerolog.InfoLevel), tt.raw)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "debug").With(String("comp", "test"))

	log.Info("entry added", String("conversation", "g1"), Err(errors.New("boom")), Err(nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "entry added", line["message"])
	require.Equal(t, "test", line["comp"])
	require.Equal(t, "g1", line["conversation"])
	require.Equal(t, "boom", line["err"])
	require.Contains(t, line["caller"], "logging_test.go")
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, "warn")

	log.Debug("hidden")
	require.Zero(t, buf.Len())
	require.False(t, log.Enabled(LevelDebug))
	require.True(t, log.Enabled(LevelError))
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var log Logger
	require.True(t, log.IsZero())
	log.Error("nothing happens")
	require.False(t, Nop().IsZero())
}

func TestVerbosityLevel(t *testing.T) {
	t.Parallel()
	require.Equal(t, "INFO", VerbosityLevel(0, "INFO"))
	require.Equal(t, "DEBUG", VerbosityLevel(1, "INFO"))
	require.Equal(t, "TRACE", VerbosityLevel(3, "INFO"))
}

func TestServiceFileSinkAndApply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replybot.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})

	log.Debug("hidden")
	log.Info("visible", String("comp", "test"))

	svc.Apply(Config{Level: "debug", Console: true, File: FileConfig{Enabled: true, Path: path}})
	log.Debug("now shown")
	require.NoError(t, svc.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "hidden")
	require.Contains(t, string(raw), `"message":"visible"`)
	require.Contains(t, string(raw), `"comp":"test"`)
	require.Contains(t, string(raw), "now shown")
}

func TestConsoleSinksAreProcessStreams(t *testing.T) {
	require.Same(t, os.Stdout, Stdout())
	require.Same(t, os.Stderr, Stderr())
	require.True(t, NewConsole("warn").Enabled(LevelWarn))
}
