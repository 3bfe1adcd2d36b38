package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_DefaultsToStderr(t *testing.T) {
	logger := NewLogger(nil)
	require.NotNil(t, logger)
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	logger.Debug("should be dropped")
	logger.Info("should also be dropped")
	require.Empty(t, buf.String())

	logger.Warn("slot busy", "slot", 3)
	require.Contains(t, buf.String(), "[WARN]")
	require.Contains(t, buf.String(), "slot=3")
}

func TestLogger_Printf(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	logger.Debugf("command %d entered state %s", 7, "Running")
	require.Contains(t, buf.String(), "command 7 entered state Running")
}

func TestDefaultAndSetDefault(t *testing.T) {
	var buf bytes.Buffer
	SetDefault(NewLogger(&Config{Level: LevelDebug, Output: &buf}))
	defer SetDefault(NewLogger(nil))

	Info("worker started")
	require.Contains(t, buf.String(), "worker started")

	require.Same(t, Default(), Default())
}
