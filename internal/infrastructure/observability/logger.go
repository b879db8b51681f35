package observability

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileOptions configures the optional rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}

	logLevel := parseLogLevel(level)

	return zerolog.New(output).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Logger()
}

// LogOutput returns stdout, teed into a rotating file when opts.Path is set.
func LogOutput(opts FileOptions) io.Writer {
	if opts.Path == "" {
		return os.Stdout
	}
	file := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    positiveOr(opts.MaxSizeMB, 100),
		MaxBackups: positiveOr(opts.MaxBackups, 5),
		MaxAge:     positiveOr(opts.MaxAgeDays, 28),
	}
	return zerolog.MultiLevelWriter(os.Stdout, file)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithPayment returns a child logger carrying the payment correlation fields.
func WithPayment(logger zerolog.Logger, paymentID, operation, idempotencyKey string) zerolog.Logger {
	l := logger.With().Str("operation", operation)
	if paymentID != "" {
		l = l.Str("payment_id", paymentID)
	}
	if idempotencyKey != "" {
		l = l.Str("idempotency_key", idempotencyKey)
	}
	return l.Logger()
}
