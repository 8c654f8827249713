package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger for structured logging
type Logger struct {
	z *zap.Logger
}

// New creates a production-ready logger
func New(development bool) (*Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z: z}, nil
}

// FromZap wraps an existing zap logger
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// Nop returns a logger that discards everything. Used in tests.
func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

// With adds fields to the logger
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

// Named adds a sub-scope name to the logger
func (l *Logger) Named(name string) *Logger {
	return &Logger{z: l.z.Named(name)}
}

func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }
func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Sync() error                           { return l.z.Sync() }

// Zap returns the underlying zap logger
func (l *Logger) Zap() *zap.Logger { return l.z }
