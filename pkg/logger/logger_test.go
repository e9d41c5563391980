package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	require.NoError(t, Init(path, "debug"))

	Info("info message", zap.String("key", "value"))
	Debug("debug message")
	Warn("warn message")
	Error("error message", zap.Error(assert.AnError))
	require.NoError(t, Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "info message")
	assert.Contains(t, string(content), "debug message")
	assert.Contains(t, string(content), `"key":"value"`)
}

func TestInit_LevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, Init(path, "warn"))

	Info("filtered out")
	Warn("kept")
	require.NoError(t, Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "filtered out")
	assert.Contains(t, string(content), "kept")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, Init(path, "chatty"))

	Debug("below info")
	Info("at info")
	require.NoError(t, Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "below info")
	assert.Contains(t, string(content), "at info")
}

func TestFatal_TestMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, Init(path, "info"))

	SetTestMode(true)
	defer SetTestMode(false)

	// Must not exit the process.
	Fatal("fatal message")
	require.NoError(t, Sync())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "fatal message")
}
