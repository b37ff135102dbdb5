package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name    string
		opts    LoggerOptions
		wantErr bool
	}{
		{
			name: "production defaults",
			opts: LoggerOptions{Level: "info", Format: "json"},
		},
		{
			name: "development",
			opts: LoggerOptions{Development: true},
		},
		{
			name: "console format",
			opts: LoggerOptions{Level: "debug", Format: "console"},
		},
		{
			name:    "invalid level",
			opts:    LoggerOptions{Level: "verbose"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := InitLogger(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
			assert.Same(t, logger, GlobalLogger)
		})
	}
}

func TestGetLogger_PanicsUninitialized(t *testing.T) {
	saved := GlobalLogger
	defer func() { GlobalLogger = saved }()

	GlobalLogger = nil
	assert.Panics(t, func() { GetLogger() })
}

func TestLogger_With(t *testing.T) {
	logger, err := InitLogger(LoggerOptions{Level: "info"})
	require.NoError(t, err)

	assert.NotNil(t, logger.WithFields(zap.String("k", "v")))
	assert.NotNil(t, logger.WithError(assert.AnError))
	assert.NotNil(t, logger.WithComponent("sweep"))
}

func TestLoggerContext(t *testing.T) {
	logger, err := InitLogger(LoggerOptions{Level: "info"})
	require.NoError(t, err)

	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, LoggerFromContext(ctx))

	// Falls back to the global logger.
	assert.Same(t, GlobalLogger, LoggerFromContext(context.Background()))
}
