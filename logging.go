package main

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DebugLogger is the unified logger for all pipeline components. Library
// packages receive the package-level debugMsg through their
// SetDebugFunction hooks.
type DebugLogger struct {
	logger  *zap.SugaredLogger
	verbose bool
}

// NewDebugLogger builds a console logger. With debug enabled everything
// down to debug level is emitted.
func NewDebugLogger(debug bool) *DebugLogger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		// Console sink construction only fails on bad config; fall back
		// to a no-op logger rather than dying before startup.
		logger = zap.NewNop()
	}

	return &DebugLogger{
		logger:  logger.Sugar(),
		verbose: debug,
	}
}

// debugMsg logs one component-tagged message.
func (dl *DebugLogger) debugMsg(component, message string) {
	dl.logger.Infof("[%s] %s", component, message)
}

// errorMsg logs one component-tagged error message.
func (dl *DebugLogger) errorMsg(component, message string) {
	dl.logger.Errorf("[%s] %s", component, message)
}

// Close flushes buffered log entries.
func (dl *DebugLogger) Close() {
	_ = dl.logger.Sync()
}

// Global debug logger instance, set once in main.
var globalDebugLogger *DebugLogger

// debugMsg is the global convenience function for unified debug logging
func debugMsg(component, message string) {
	if globalDebugLogger != nil {
		globalDebugLogger.debugMsg(component, message)
	}
}

// errorMsg is the global convenience function for error logging
func errorMsg(component, message string) {
	if globalDebugLogger != nil {
		globalDebugLogger.errorMsg(component, message)
	}
}
