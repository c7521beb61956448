// Package logging provides structured logging using Go's slog package,
// adapted from the teacher corpus's logging setup for the core's own event
// vocabulary (cache admission, reconcile outcomes, installer stages).
package logging

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// ContextKey avoids collisions on context values.
type ContextKey string

// RequestIDKey tags one install/reconcile/reset invocation across its
// progress callbacks.
const RequestIDKey ContextKey = "operation_id"

var defaultLogger *slog.Logger

func init() {
	Init(LevelInfo, FormatText)
}

// Level is a log level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format is a log output format.
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// ParseLevel parses a config string into a Level, defaulting to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat parses a config string into a Format, defaulting to FormatText.
func ParseFormat(s string) Format {
	if s == "json" {
		return FormatJSON
	}
	return FormatText
}

// Init initializes the package-level logger. This package's init calls it
// with LevelInfo/FormatText, and startup code calls it again with the
// operator's configured level/format; InitLogger in JuniperBible's
// logging package is renamed Init here since this package carries no
// other exported constructor to disambiguate from.
func Init(level Level, format Format) {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

// Logger returns the package-level logger instance.
func Logger() *slog.Logger {
	return defaultLogger
}

// WithOperationID tags ctx with an operation id for correlating the stages
// of one install/reconcile/reset across log lines.
func WithOperationID(ctx context.Context, operationID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, operationID)
}

func operationID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey).(string); ok {
		return v
	}
	return ""
}

// FromContext returns a logger with the context's operation id attached, if
// any.
func FromContext(ctx context.Context) *slog.Logger {
	logger := defaultLogger
	if id := operationID(ctx); id != "" {
		logger = logger.With("operation_id", id)
	}
	return logger
}

func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }
func Info(msg string, args ...any)  { defaultLogger.Info(msg, args...) }
func Warn(msg string, args ...any)  { defaultLogger.Warn(msg, args...) }
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }

func DebugContext(ctx context.Context, msg string, args ...any) { FromContext(ctx).Debug(msg, args...) }
func InfoContext(ctx context.Context, msg string, args ...any)  { FromContext(ctx).Info(msg, args...) }
func WarnContext(ctx context.Context, msg string, args ...any)  { FromContext(ctx).Warn(msg, args...) }
func ErrorContext(ctx context.Context, msg string, args ...any) { FromContext(ctx).Error(msg, args...) }

// InstallStage logs one Installer pipeline stage transition.
func InstallStage(remoteModID int64, stage string, args ...any) {
	allArgs := []any{"remote_mod_id", remoteModID, "stage", stage}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("install_stage", allArgs...)
}

// CacheAdmission logs a Cache.Admit outcome.
func CacheAdmission(fingerprint string, reused bool, byteSize int64) {
	defaultLogger.Info("cache_admission",
		"fingerprint", fingerprint,
		"reused", reused,
		"byte_size", byteSize,
	)
}

// ReconcileOutcome logs an Activator.Reconcile result.
func ReconcileOutcome(created, removed, failed int, args ...any) {
	allArgs := []any{"created", created, "removed", removed, "failed", failed}
	allArgs = append(allArgs, args...)
	defaultLogger.Info("reconcile_outcome", allArgs...)
}
