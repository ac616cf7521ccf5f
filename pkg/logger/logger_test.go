package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestBuildAuditLoggerRequiresPath(t *testing.T) {
	_, err := buildAuditLogger(AuditConfig{Enabled: true})
	assert.Error(t, err)
}

func TestBuildAuditLoggerWritesThroughLumberjack(t *testing.T) {
	path := t.TempDir() + "/audit/audit.log"
	l, err := buildAuditLogger(AuditConfig{Enabled: true, Path: path})
	assert.NoError(t, err)
	l.Info("api_request", slog.String("path", "/healthz"))
	assert.NoError(t, Sync())
	assert.FileExists(t, path)
}

func TestDiscardDropsRecords(t *testing.T) {
	assert.False(t, Discard().Enabled(context.Background(), slog.LevelError))
}
