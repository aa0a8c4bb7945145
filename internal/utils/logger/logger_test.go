package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(dir, "balance.log")
	cfg.Development = false

	l, err := New(cfg)
	require.NoError(t, err)

	l.WithComponent("test").Info("hello", zap.String("k", "v"))
	_ = l.Sync()

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestHelpersAttachFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	l.WithWallet("9JcQHyiBYphAFSuquR4Te6yzuzqKnndhkQsSNfZ8gBze").Info("lookup")
	l.WithOperation("bulk-report").Info("started")
	l.LogError("failed", errors.New("boom"), zap.Int("attempt", 2))

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "9JcQHyiBYphAFSuquR4Te6yzuzqKnndhkQsSNfZ8gBze", entries[0].ContextMap()["wallet"])

	ctx := entries[1].ContextMap()
	assert.Equal(t, "bulk-report", ctx["operation"])
	assert.NotEmpty(t, ctx["correlation_id"])

	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
	assert.Equal(t, int64(2), entries[2].ContextMap()["attempt"])
}

func TestTrackPerformanceLogsCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core))

	done := l.TrackPerformance("resolve")
	done()

	assert.Equal(t, 1, logs.FilterMessage("Starting operation").Len())
	assert.Equal(t, 1, logs.FilterMessage("Operation completed").Len())
}
