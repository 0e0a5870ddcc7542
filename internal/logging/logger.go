// Package logging configures the process-wide zap core once and hands out
// user-scoped Logger handles to the components that need one.
package logging

import (
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	File  string
}

var (
	initOnce sync.Once
	base     *zap.Logger
	initErr  error
)

// Init builds the shared zap logger. Only the first call configures anything;
// later calls return the same logger regardless of opts.
func Init(opts Options) (*zap.Logger, error) {
	initOnce.Do(func() {
		base, initErr = build(opts)
	})
	return base, initErr
}

func build(opts Options) (*zap.Logger, error) {
	level, known := ParseLevel(opts.Level)

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		if err := os.MkdirAll(dirOf(opts.File), 0755); err != nil {
			return nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    1,
			MaxBackups: 5,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if !known {
		logger.Warn("[SYS] Logging level not recognised. Reverting to default level: INFO", zap.String("level", opts.Level))
	}
	return logger, nil
}

// ParseLevel accepts the level names used in config files, including the
// CRITICAL/CRIT and WARNING aliases. Unknown names fall back to INFO.
func ParseLevel(name string) (zapcore.Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "CRITICAL", "CRIT", "ERROR":
		return zapcore.ErrorLevel, true
	case "WARNING", "WARN":
		return zapcore.WarnLevel, true
	case "INFO", "":
		return zapcore.InfoLevel, true
	case "DEBUG":
		return zapcore.DebugLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}

func dirOf(path string) string {
	idx := strings.LastIndexAny(path, `/\`)
	if idx <= 0 {
		return "."
	}
	return path[:idx]
}

// Logger tags every entry with the acting database user.
type Logger struct {
	z *zap.Logger
}

func New(z *zap.Logger, user string) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{z: z.With(zap.String("user", user))}
}

func Nop() *Logger {
	return &Logger{z: zap.NewNop()}
}

func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{z: l.z.With(fields...)}
}

func (l *Logger) Zap() *zap.Logger { return l.z }

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.z.Debug(msg, fields...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.z.Info(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.z.Warn(msg, fields...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.z.Error(msg, fields...) }

// Query records the full statement text at DEBUG.
func (l *Logger) Query(query string, args ...any) {
	if ce := l.z.Check(zapcore.DebugLevel, "query"); ce != nil {
		ce.Write(zap.String("sql", strings.Join(strings.Fields(query), " ")), zap.Any("args", args))
	}
}

// Fail records err at ERROR and returns it unchanged, so that every error
// handed back to a caller has already been logged.
func (l *Logger) Fail(err error) error {
	if err == nil {
		return nil
	}
	fields := []zap.Field{zap.Error(err)}
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		fields = append(fields, zap.String("kind", string(appErr.Kind)))
		if appErr.Table != "" {
			fields = append(fields, zap.String("table", appErr.Table))
		}
		if appErr.Key != "" {
			fields = append(fields, zap.String("key", appErr.Key))
		}
		if appErr.FileName != "" {
			fields = append(fields, zap.String("file", appErr.FileName))
		}
	}
	l.z.Error("database error", fields...)
	return err
}
