package logger

import (
	"log/slog"
	"testing"

	"networth_aggregator/internal/infrastructure/configloader"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_ParsesLevel(t *testing.T) {
	l := New(configloader.LoggingConfig{Level: "warn", Format: "console"})
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	l := New(configloader.LoggingConfig{Level: "loud"})
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestInstallSlog_WritesToZapCore(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	core, logs := observer.New(zapcore.InfoLevel)
	InstallSlog(zap.New(core))

	slog.Info("bridged", "chain_id", 10)

	entries := logs.FilterMessage("bridged").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, int64(10), entries[0].ContextMap()["chain_id"])
	}
}
