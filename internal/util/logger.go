package util

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	LogFormatConsole = "console"
	LogFormatJSON    = "json"
)

// NewZapLogger writes records below error to stdout and error and above to
// stderr. Unknown levels fall back to info, unknown formats to console.
func NewZapLogger(levelName, format string) *zap.SugaredLogger {
	return newZapLogger(levelName, format, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr))
}

func newZapLogger(levelName, format string, out, errOut zapcore.WriteSyncer) *zap.SugaredLogger {
	minLevel, err := zapcore.ParseLevel(levelName)
	if err != nil {
		minLevel = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	if format == LogFormatJSON {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	low := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l < zapcore.ErrorLevel
	})
	high := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel && l >= zapcore.ErrorLevel
	})

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, out, low),
		zapcore.NewCore(encoder.Clone(), errOut, high),
	)

	return zap.New(core).Sugar()
}
