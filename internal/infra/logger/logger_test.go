package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venturedesk/internal/infra/config"
)

func TestLevelFor(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levelFor(tt.input), "level %q", tt.input)
	}
}

func TestOpenTargetStandardStreams(t *testing.T) {
	w, closer, err := openTarget("stdout")
	require.NoError(t, err)
	require.NoError(t, closer())
	assert.Equal(t, os.Stdout, w)

	for _, target := range []string{"stderr", ""} {
		w, closer, err = openTarget(target)
		require.NoError(t, err)
		require.NoError(t, closer())
		assert.Equal(t, os.Stderr, w, "target %q", target)
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	log.Info("gateway started", "addr", "127.0.0.1:0")
	log.Debug("filtered at info level")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "gateway started")
	assert.NotContains(t, string(data), "filtered at info level")
}

func TestNewRejectsUnwritableTarget(t *testing.T) {
	_, _, err := New(config.LoggerConfig{Output: "/nonexistent/dir/app.log"})
	require.Error(t, err)
}
