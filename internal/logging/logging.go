// Package logging builds the zap loggers used across proctest.
//
// The orchestrating process logs to stderr; each verification process logs
// to a file inside its group's state directory so its output outlives the
// process. Components take a *zap.Logger and derive named children:
//
//	log := logger.Named("coordinator").With(zap.String("group", name))
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  string `koanf:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"omitempty,oneof=json console"`
	// File redirects output to a file instead of stderr when set.
	File string `koanf:"file"`
}

// TraceLevel is a custom level below Debug, used for per-node scheduling detail.
const TraceLevel = zapcore.Level(-2)

// NewDefaultConfig returns console output at info level.
func NewDefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// LevelFromString parses a string into a zapcore.Level, supporting "trace".
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// New creates a logger from cfg. Output goes to cfg.File when set, else to w
// (stderr when w is nil). The returned close function flushes and releases
// any opened file.
func New(cfg Config, w io.Writer) (*zap.Logger, func() error, error) {
	level, err := LevelFromString(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	closeFn := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
		closeFn = f.Close
	}
	if w == nil {
		w = os.Stderr
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(w), level)
	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))

	return logger, func() error {
		_ = logger.Sync()
		return closeFn()
	}, nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = encodeLevel

	if format == "json" {
		return zapcore.NewJSONEncoder(encoderCfg)
	}
	return zapcore.NewConsoleEncoder(encoderCfg)
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if l == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(l, enc)
}
