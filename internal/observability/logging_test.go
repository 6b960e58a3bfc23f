package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/spec-kit/ticket-engine/internal/config"
)

func TestLoggerConfig(t *testing.T) {
	app := config.AppConfig{Name: "support-ticket-engine", Version: "1.2.0", Env: "production"}

	cfg := loggerConfig(app, config.LoggerConfig{Level: "WARN", Format: "json", Sampling: true})
	assert.Equal(t, zapcore.WarnLevel, cfg.Level.Level())
	assert.False(t, cfg.Development)
	assert.Equal(t, "json", cfg.Encoding)
	require.NotNil(t, cfg.Sampling)
	assert.Equal(t, map[string]any{"service": "support-ticket-engine", "version": "1.2.0", "env": "production"}, cfg.InitialFields)

	app.Env = "development"
	cfg = loggerConfig(app, config.LoggerConfig{Level: "nonsense", Format: "console", Sampling: true})
	assert.Equal(t, zapcore.InfoLevel, cfg.Level.Level())
	assert.True(t, cfg.Development)
	assert.Equal(t, "console", cfg.Encoding)
	assert.Nil(t, cfg.Sampling)
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.AppConfig{Name: "svc", Env: "test"}, config.LoggerConfig{Level: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}
