package logger

import (
	"github.com/rs/zerolog"
)

// WrappedLogger exposes a zerolog logger under the retryablehttp.LeveledLogger interface.
type WrappedLogger struct {
	logger zerolog.Logger
}

// NewWrappedLogger wraps the given logger.
func NewWrappedLogger(logger zerolog.Logger) *WrappedLogger {
	return &WrappedLogger{logger: logger}
}

// Error logs at the error level.
func (l *WrappedLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

// Info logs at the info level.
func (l *WrappedLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info().Fields(keysAndValues).Msg(msg)
}

// Debug logs at the debug level.
func (l *WrappedLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

// Warn logs at the warn level.
func (l *WrappedLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}
