package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/konsulin-care/focus/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init initializes and returns a new zap logger. Every level at or above
// cfg.Level goes to its own rotating JSON file under cfg.Directory and to a
// colored console on stderr. An empty directory disables the file cores.
func Init(cfg config.LoggingConfig) (*zap.Logger, error) {
	minLevel, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	// Base encoder configuration for file logs (JSON format)
	encoderConfig := zapcore.EncoderConfig{
		MessageKey:   "message",
		LevelKey:     "level",
		TimeKey:      "time",
		CallerKey:    "caller",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	cores := []zapcore.Core{newConsoleCore(minLevel)}
	if cfg.Directory != "" {
		for _, level := range []zapcore.Level{zapcore.DebugLevel, zapcore.InfoLevel, zapcore.WarnLevel, zapcore.ErrorLevel} {
			if level < minLevel {
				continue
			}
			core, err := newFileCore(cfg, level, encoderConfig)
			if err != nil {
				return nil, err
			}
			cores = append(cores, core)
		}
	}

	// A log entry is sent to every core, and each decides whether to
	// write it based on its LevelEnabler.
	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	return logger, nil
}

// newFileCore creates a core that writes a specific log level to a rotating file.
func newFileCore(cfg config.LoggingConfig, level zapcore.Level, encoderConfig zapcore.EncoderConfig) (zapcore.Core, error) {
	if err := os.MkdirAll(cfg.Directory, 0755); err != nil {
		return nil, fmt.Errorf("could not create log directory: %w", err)
	}

	// Create a log file for each level, named like '2025-07-30-info.log'
	fileName := filepath.Join(cfg.Directory, fmt.Sprintf("%s-%s.log", time.Now().Format("2006-01-02"), level.String()))

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   fileName,
		MaxSize:    cfg.MaxSize, // megabytes
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge, // days
		Compress:   cfg.Compress,
	})

	// Only this exact level goes to this file.
	levelEnabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l == level
	})

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		writer,
		levelEnabler,
	), nil
}

// newConsoleCore creates a core that writes to stderr, leaving stdout to
// command output.
func newConsoleCore(minLevel zapcore.Level) zapcore.Core {
	levelEnabler := zap.LevelEnablerFunc(func(l zapcore.Level) bool {
		return l >= minLevel
	})

	// Use a more human-readable encoder for the console.
	consoleEncoderConfig := zap.NewDevelopmentEncoderConfig()
	consoleEncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder // Add color to levels

	return zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig),
		zapcore.AddSync(os.Stderr),
		levelEnabler,
	)
}
