// Package logging adapts zap to the service logger interface.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// ZapLogger implements the core logging interface on a zap sugared logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// New builds a production zap logger. When debug is true the development
// config is used instead, with debug-level output.
func New(debug bool) (*ZapLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &ZapLogger{sugar: logger.Sugar()}, nil
}

// Wrap adapts an existing zap logger.
func Wrap(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: logger.Sugar()}
}

// Sync flushes buffered log entries.
func (l *ZapLogger) Sync() error { return l.sugar.Sync() }

func (l *ZapLogger) Debug(msg string, args ...any) { l.sugar.Debugw(msg, args...) }
func (l *ZapLogger) Info(msg string, args ...any)  { l.sugar.Infow(msg, args...) }
func (l *ZapLogger) Warn(msg string, args ...any)  { l.sugar.Warnw(msg, args...) }
func (l *ZapLogger) Error(msg string, args ...any) { l.sugar.Errorw(msg, args...) }
