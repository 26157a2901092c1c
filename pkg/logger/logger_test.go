package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"spmagent/pkg/trace"
)

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithTrace(trace.WithContext(context.Background(), "t-1"), base).Info("traced")
	WithTrace(context.Background(), base).Info("plain")

	entries := logs.All()
	assert.Len(t, entries, 2)
	assert.Equal(t, "t-1", entries[0].ContextMap()["trace_id"])
	_, ok := entries[1].ContextMap()["trace_id"]
	assert.False(t, ok)
}

func TestNewLogger_Level(t *testing.T) {
	l := NewLogger("warn")
	assert.False(t, l.Core().Enabled(zap.InfoLevel))
	assert.True(t, l.Core().Enabled(zap.WarnLevel))
	assert.Same(t, l, Log)
}
