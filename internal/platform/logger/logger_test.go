package logger_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/taskrelay/internal/platform/jsoncodec"
	"github.com/phrazzld/taskrelay/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreDefault(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
	}{
		{"debug", true, true},
		{"INFO", false, true},
		{"warn", false, false},
		{"error", false, false},
	}

	for _, tc := range tests {
		t.Run(tc.level, func(t *testing.T) {
			restoreDefault(t)
			var buf bytes.Buffer
			l, err := logger.Setup(logger.LoggerConfig{Level: tc.level, Output: &buf})
			require.NoError(t, err)

			l.Debug("debug message")
			l.Info("info message")

			assert.Equal(t, tc.debugSeen, bytes.Contains(buf.Bytes(), []byte("debug message")))
			assert.Equal(t, tc.infoSeen, bytes.Contains(buf.Bytes(), []byte("info message")))
		})
	}
}

func TestSetupInvalidLevelFallsBackToInfo(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	l, err := logger.Setup(logger.LoggerConfig{Level: "chatty", Output: &buf})
	require.NoError(t, err)
	require.NotNil(t, l)

	var entry map[string]any
	require.NoError(t, jsoncodec.Unmarshal(bytes.Split(buf.Bytes(), []byte("\n"))[0], &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "chatty", entry["configured_level"])
}

func TestSetupSetsDefaultAndJSON(t *testing.T) {
	restoreDefault(t)
	var buf bytes.Buffer
	_, err := logger.Setup(logger.LoggerConfig{Level: "info", Output: &buf})
	require.NoError(t, err)

	slog.Info("through default", "key", "value")

	var entry map[string]any
	require.NoError(t, jsoncodec.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "through default", entry["msg"])
	assert.Equal(t, "value", entry["key"])
}

func TestSetupRejectsUnknownFormat(t *testing.T) {
	_, err := logger.Setup(logger.LoggerConfig{Format: "xml"})
	assert.Error(t, err)
}

func TestContextHelpers(t *testing.T) {
	l, buf := logger.NewTestLogger(t)

	assert.Nil(t, logger.FromContext(context.Background()))

	ctx := logger.WithLogger(context.Background(), l)
	assert.Same(t, l, logger.FromContext(ctx))

	fallback := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, l, logger.FromContextOrDefault(ctx, fallback))
	assert.Same(t, fallback, logger.FromContextOrDefault(context.Background(), fallback))
	assert.NotNil(t, logger.FromContextOrDefault(context.Background(), nil))

	logger.FromContext(ctx).Info("hello", "task_id", "t1")
	assert.Equal(t, []string{"hello"}, buf.Messages())
}
