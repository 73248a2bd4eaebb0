package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"", zapcore.InfoLevel, false},
		{" INFO ", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestNewLogger(t *testing.T) {
	for _, profile := range []string{"", ProfileStructured, ProfileConsole} {
		logger, err := NewLogger("rqlens", "debug", profile)
		require.NoError(t, err, profile)
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	}

	_, err := NewLogger("rqlens", "info", "fancy")
	assert.Error(t, err)
}

func TestInitLoggers(t *testing.T) {
	origCLI, origServer := CLILogger, ServerLogger
	defer func() { CLILogger, ServerLogger = origCLI, origServer }()

	require.NoError(t, InitCLILogger("rqlens", "warn", ProfileConsole))
	assert.False(t, CLILogger.Core().Enabled(zapcore.InfoLevel))

	require.NoError(t, InitServerLogger("rqlens", "info", ProfileStructured))
	assert.True(t, ServerLogger.Core().Enabled(zapcore.InfoLevel))

	assert.Error(t, InitCLILogger("rqlens", "nope", ProfileConsole))
}
