// Package logging provides structured logging for the walk core.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kimhsiao/pawtrail/core/internal/errors"
)

var (
	global *zap.Logger
	// helper skips one frame so package-level calls report their caller.
	helper *zap.Logger
	mu     sync.RWMutex
	once   sync.Once
)

// Init initializes the global logger. Only the first call has an effect.
func Init(level string, meta ...zap.Field) error {
	var err error
	once.Do(func() {
		var lvl zapcore.Level
		lvl, err = ParseLevel(level)
		if err != nil {
			return
		}
		var logger *zap.Logger
		logger, err = configure(lvl).Build(zap.AddCaller())
		if err != nil {
			return
		}
		SetLogger(logger.With(meta...))
	})
	return err
}

// ParseLevel maps debug, info, warn and error to zap levels. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(level))
}

func configure(level zapcore.Level) zap.Config {
	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "timestamp"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder.EncodeLevel = zapcore.CapitalLevelEncoder
	encoder.EncodeCaller = zapcore.ShortCallerEncoder
	encoder.EncodeDuration = zapcore.SecondsDurationEncoder
	return zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    encoder,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(logger *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = logger
	helper = logger.WithOptions(zap.AddCallerSkip(1))
}

// Get returns the global logger, falling back to a production logger at info.
func Get() *zap.Logger {
	mu.RLock()
	logger := global
	mu.RUnlock()
	if logger != nil {
		return logger
	}

	if err := Init("info"); err != nil || Current() == nil {
		SetLogger(zap.NewNop())
	}
	return Current()
}

// Current returns the global logger without initializing it.
func Current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Named returns a child of the global logger scoped to a component.
func Named(component string) *zap.Logger {
	return Get().Named(component)
}

func helperLogger() *zap.Logger {
	Get()
	mu.RLock()
	defer mu.RUnlock()
	return helper
}

// Convenience functions using global logger

func Debug(message string, fields ...zap.Field) {
	helperLogger().Debug(message, fields...)
}

func Info(message string, fields ...zap.Field) {
	helperLogger().Info(message, fields...)
}

func Warn(message string, fields ...zap.Field) {
	helperLogger().Warn(message, fields...)
}

func Error(message string, err error, fields ...zap.Field) {
	helperLogger().Error(message, append(fields, zap.Error(err))...)
}

// ErrorWithCode logs an error tagged with its bridge error code.
func ErrorWithCode(message string, code errors.ErrorCode, err error, fields ...zap.Field) {
	helperLogger().Error(message, append(fields, zap.String("code", string(code)), zap.Error(err))...)
}

// Sync flushes buffered log entries.
func Sync() error {
	if logger := Current(); logger != nil {
		return logger.Sync()
	}
	return nil
}
