// Package logging builds the run logger and carries it through context.Context.
//
// Every byte the logger writes passes through the run's [mask.Masker], so a
// secret registered after the logger was created is still scrubbed from later
// lines. Warn and Error entries can be forwarded to the report through extra
// cores.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"atom/internal/mask"
)

// Options configures [New].
type Options struct {
	// Level is a zap level name: debug, info, warn, error. Defaults to info.
	Level string

	// File is an optional log file path. When set, entries are also written
	// to a size-rotated file.
	File string

	// Output receives console output. Defaults to os.Stderr.
	Output io.Writer

	// Masker scrubs secrets from every written line. May be nil.
	Masker *mask.Masker

	// Cores are teed with the writing cores. Each applies its own level
	// filter and sees the fields of every entry it accepts.
	Cores []zapcore.Core
}

// New builds a console logger per opts.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleEncoderConfig()),
			NewMaskingSyncer(zapcore.AddSync(out), opts.Masker),
			level,
		),
	}

	if opts.File != "" {
		rotating := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     7,
			LocalTime:  true,
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(fileEncoderConfig()),
			NewMaskingSyncer(rotating, opts.Masker),
			level,
		))
	}

	cores = append(cores, opts.Cores...)
	return zap.New(zapcore.NewTee(cores...)), nil
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		MessageKey:     "M",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(time.TimeOnly),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
}

func fileEncoderConfig() zapcore.EncoderConfig {
	cfg := consoleEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000")
	return cfg
}

type ctxKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored by [WithLogger], or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && logger != nil {
			return logger
		}
	}
	return zap.NewNop()
}

// MaskingSyncer masks secrets in each write before passing it on.
type MaskingSyncer struct {
	next   zapcore.WriteSyncer
	masker *mask.Masker
}

// NewMaskingSyncer wraps next. A nil masker disables masking.
func NewMaskingSyncer(next zapcore.WriteSyncer, masker *mask.Masker) *MaskingSyncer {
	return &MaskingSyncer{next: next, masker: masker}
}

// Write implements io.Writer. It reports len(p) on success since the masked
// payload may differ in length.
func (s *MaskingSyncer) Write(p []byte) (int, error) {
	if s.masker == nil {
		return s.next.Write(p)
	}
	if _, err := s.next.Write([]byte(s.masker.Mask(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sync implements zapcore.WriteSyncer.
func (s *MaskingSyncer) Sync() error {
	return s.next.Sync()
}
