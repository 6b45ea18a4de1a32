package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	apperrors "github.com/kimhsiao/pawtrail/core/internal/errors"
)

func observe(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	previous := Current()
	SetLogger(zap.New(core))
	t.Cleanup(func() {
		if previous != nil {
			SetLogger(previous)
		}
	})
	return logs
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"", zapcore.InfoLevel, false},
		{"debug", zapcore.DebugLevel, false},
		{"WARN", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"chatty", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHelpers_writeStructuredFields(t *testing.T) {
	logs := observe(t, zapcore.DebugLevel)

	Debug("checkpoint saved", zap.String("local_id", "w1"))
	Info("sync pass finished", zap.Int("synced", 2))
	Warn("remote unreachable")
	Error("save failed", errors.New("disk full"))

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "checkpoint saved", entries[0].Message)
	assert.Equal(t, "w1", entries[0].ContextMap()["local_id"])
	assert.Equal(t, int64(2), entries[1].ContextMap()["synced"])
	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "disk full", entries[3].ContextMap()["error"])
}

func TestErrorWithCode_tagsCode(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	ErrorWithCode("walk insert failed", apperrors.ErrRemoteSync, errors.New("timeout"),
		zap.String("local_id", "w2"))

	entries := logs.FilterMessage("walk insert failed").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Equal(t, "REMOTE_SYNC_ERROR", ctx["code"])
	assert.Equal(t, "w2", ctx["local_id"])
	assert.Equal(t, "timeout", ctx["error"])
}

func TestLevelFiltering(t *testing.T) {
	logs := observe(t, zapcore.WarnLevel)

	Debug("hidden")
	Info("hidden")
	Warn("shown")

	assert.Equal(t, 1, logs.Len())
}

func TestNamed_scopesComponent(t *testing.T) {
	logs := observe(t, zapcore.InfoLevel)

	Named("sync").Info("pass started")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "sync", entries[0].LoggerName)
}

func TestGet_neverNil(t *testing.T) {
	assert.NotNil(t, Get())
}
