package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureLogOutput(f func()) string {
	var buf bytes.Buffer
	oldLogger := defaultLogger

	handler := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	defaultLogger = slog.New(handler)

	f()

	defaultLogger = oldLogger
	return buf.String()
}

func TestInit_AllLevelsAndFormats(t *testing.T) {
	cases := []struct {
		level  Level
		format Format
	}{
		{LevelDebug, FormatJSON},
		{LevelInfo, FormatJSON},
		{LevelWarn, FormatJSON},
		{LevelError, FormatJSON},
		{LevelInfo, FormatText},
		{Level(999), FormatJSON},
	}
	for _, c := range cases {
		Init(c.level, c.format)
		assert.NotNil(t, Logger())
	}
	Init(LevelInfo, FormatText)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warn"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatText, ParseFormat("text"))
}

func TestWithOperationID_RoundTrips(t *testing.T) {
	ctx := WithOperationID(context.Background(), "op-123")
	assert.Equal(t, "op-123", operationID(ctx))
}

func TestOperationID_AbsentReturnsEmpty(t *testing.T) {
	assert.Equal(t, "", operationID(context.Background()))
}

func TestLoggingFunctions(t *testing.T) {
	Init(LevelDebug, FormatJSON)

	output := captureLogOutput(func() {
		Debug("debug message", "key", "value")
		Info("info message", "key", "value")
		Warn("warn message")
		Error("error message")
	})

	assert.Contains(t, output, "debug message")
	assert.Contains(t, output, "info message")
	assert.Contains(t, output, "warn message")
	assert.Contains(t, output, "error message")
}

func TestContextLoggingFunctions(t *testing.T) {
	Init(LevelDebug, FormatJSON)
	ctx := WithOperationID(context.Background(), "op-xyz")

	output := captureLogOutput(func() {
		InfoContext(ctx, "context message")
	})

	assert.True(t, strings.Contains(output, "op-xyz"))
}

func TestCacheAdmission(t *testing.T) {
	Init(LevelInfo, FormatJSON)

	output := captureLogOutput(func() {
		CacheAdmission("sha256:abc", true, 1024)
	})

	assert.Contains(t, output, "cache_admission")
	assert.Contains(t, output, "sha256:abc")
}

func TestInstallStage(t *testing.T) {
	Init(LevelInfo, FormatJSON)

	output := captureLogOutput(func() {
		InstallStage(42, "fetch")
	})

	assert.Contains(t, output, "install_stage")
	assert.Contains(t, output, "fetch")
}

func TestReconcileOutcome(t *testing.T) {
	Init(LevelInfo, FormatJSON)

	output := captureLogOutput(func() {
		ReconcileOutcome(2, 1, 0)
	})

	assert.Contains(t, output, "reconcile_outcome")
}
