package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string
	Production bool

	// File enables an additional rotating JSON sink.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var logger *zap.Logger

func InitProd() *zap.Logger {
	return Init(Options{Production: true})
}

func InitDev() *zap.Logger {
	return Init(Options{})
}

func Init(opts Options) *zap.Logger {
	var config zap.Config
	if opts.Production {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncoderConfig.ConsoleSeparator = " "
	}
	// stdout carries the machine readable result
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}

	if opts.Level != "" {
		level, err := zapcore.ParseLevel(opts.Level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unknown log level %q: %v\n", opts.Level, err)
			os.Exit(1)
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	var options []zap.Option
	options = append(options, zap.AddStacktrace(zap.ErrorLevel))
	if opts.File != "" {
		sink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		})
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			sink,
			zap.DebugLevel,
		)
		options = append(options, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, fileCore)
		}))
	}

	var err error
	logger, err = config.Build(options...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init zap logger: %v", err)
		os.Exit(1)
	}
	return logger
}

func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
