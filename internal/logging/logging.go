// Package logging is a thin wrapper over zap: a With/Info/Warn/Error/Debug/
// Fatal shape with typed field constructors, logging directly to a
// zap.Logger sink rather than through an OS service manager, since this
// daemon has no install-as-a-service surface.
package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a typed logging attribute, mirroring servicelog.Attrib.
type Field = zap.Field

func String(key, value string) Field        { return zap.String(key, value) }
func Int(key string, value int) Field       { return zap.Int(key, value) }
func Bool(key string, value bool) Field     { return zap.Bool(key, value) }
func Error(err error) Field                 { return zap.Error(err) }
func Duration(key string, d time.Duration) Field { return zap.Duration(key, d) }
func Any(key string, value interface{}) Field    { return zap.Any(key, value) }

// Logger matches servicelog.Logger's shape.
type Logger interface {
	With(fields ...Field) Logger
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a Logger. When logFile is non-empty, output is rotated through
// lumberjack; an empty logFile logs to stderr instead.
func New(debug bool, logFile string) (Logger, error) {
	var core zap.Config
	if debug {
		core = zap.NewDevelopmentConfig()
	} else {
		core = zap.NewProductionConfig()
	}
	if logFile == "" {
		z, err := core.Build()
		if err != nil {
			return nil, fmt.Errorf("logging: build: %w", err)
		}
		return &zapLogger{z: z}, nil
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	level := zapcore.InfoLevel
	if debug {
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		level = zapcore.DebugLevel
	}
	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
	})
	z := zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), sink, level))
	return &zapLogger{z: z}, nil
}

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(fields...)}
}

func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }
