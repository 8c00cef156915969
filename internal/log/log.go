package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	sugar      *zap.SugaredLogger
	loggerOnce sync.Once
	level      zap.AtomicLevel
)

// initLogger initializes the global logger to write to stderr with
// ISO8601 timestamps. Console encoding keeps output readable when the
// daemon runs in a terminal; the structured fields survive either way.
func initLogger() {
	loggerOnce.Do(func() {
		level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		)
		sugar = zap.New(core).Sugar()
	})
}

// SetDebug lowers the minimum level to DEBUG when enabled is true.
func SetDebug(enabled bool) {
	initLogger()
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

func Debug(msg string, kv ...any) {
	initLogger()
	sugar.Debugw(msg, kv...)
}

func Info(msg string, kv ...any) {
	initLogger()
	sugar.Infow(msg, kv...)
}

// Error logs msg at ERROR level with err prepended as the first field.
func Error(msg string, err error, kv ...any) {
	initLogger()
	sugar.Errorw(msg, append([]any{"err", err}, kv...)...)
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	initLogger()
	_ = sugar.Sync()
}
