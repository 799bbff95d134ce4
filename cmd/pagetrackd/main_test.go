package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/shehryarbajwa/pagetrack/internal/config"
)

func TestNewLoggers_ProductionTrackerLoggerIsSilent(t *testing.T) {
	cfg, err := config.Resolve(config.Settings{ProjectID: "proj"}, config.Production)
	require.NoError(t, err)

	logger, coreLogger, err := newLoggers(cfg)
	require.NoError(t, err)

	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, coreLogger.Core().Enabled(zapcore.ErrorLevel), "delivery errors stay quiet in production")
}

func TestNewLoggers_DevelopmentTrackerLoggerLogs(t *testing.T) {
	cfg, err := config.Resolve(config.Settings{}, config.Development)
	require.NoError(t, err)

	_, coreLogger, err := newLoggers(cfg)
	require.NoError(t, err)

	assert.True(t, coreLogger.Core().Enabled(zapcore.DebugLevel))
}

func TestOpenStore_RejectsUnknownBackend(t *testing.T) {
	_, _, err := openStore(t.Context(), options{store: "etcd"})
	require.Error(t, err)
}

func TestOpenStore_SQLite(t *testing.T) {
	store, closeStore, err := openStore(t.Context(), options{store: "sqlite", sqlitePath: ":memory:"})
	require.NoError(t, err)
	defer closeStore()

	require.NoError(t, store.Set(t.Context(), "visitorId", "visitor-abcdefghi"))
	value, err := store.Get(t.Context(), "visitorId")
	require.NoError(t, err)
	assert.Equal(t, "visitor-abcdefghi", value)
}
