// Package logging builds the zap logger shared by every component.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// New returns a logger writing to stdout at the given level.
// Unknown levels fall back to info.
func New(level string, format Format) *zap.Logger {
	return newLogger(level, format, os.Stdout)
}

func newLogger(level string, format Format, w io.Writer) *zap.Logger {
	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(level)); err != nil {
		atom.SetLevel(zap.InfoLevel)
	}

	core := zapcore.NewCore(encoder(format), zapcore.Lock(zapcore.AddSync(w)), atom)
	return zap.New(core, zap.AddStacktrace(zap.ErrorLevel)).Named("headctl")
}

func encoder(format Format) zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == FormatConsole {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}

	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(cfg)
}
