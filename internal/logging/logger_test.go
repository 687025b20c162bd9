package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      Options
		wantLevel zapcore.Level
	}{
		{name: "development default", opts: Options{Development: true}, wantLevel: zapcore.DebugLevel},
		{name: "production default", opts: Options{}, wantLevel: zapcore.InfoLevel},
		{name: "production warn", opts: Options{Level: "warn"}, wantLevel: zapcore.WarnLevel},
		{name: "development error", opts: Options{Development: true, Level: "error"}, wantLevel: zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			logger, err := New(tt.opts)
			require.NoError(t, err)
			defer logger.Sync() //nolint:errcheck // best-effort flush

			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			if tt.wantLevel > zapcore.DebugLevel {
				assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
			}
		})
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "chatty"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse log level")
}

func TestComponentNamesLogger(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	Component(zap.New(core), "pool").Info("ready")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pool", entries[0].LoggerName)
}

func TestComponentNilLogger(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		Component(nil, "pool").Info("dropped")
	})
}
