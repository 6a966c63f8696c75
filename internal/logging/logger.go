// Package logging builds the diagnostic logger. The terminal belongs to the
// chat UI, so log output goes to a file.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger writing to path. An empty path discards everything.
func New(path string, verbose bool) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}

	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// CaptureStdLog routes the standard library logger into logger until the
// returned func is called. Libraries that log with package log would
// otherwise write over the UI.
func CaptureStdLog(logger *zap.Logger) (restore func()) {
	return zap.RedirectStdLog(logger.Named("stdlog"))
}
