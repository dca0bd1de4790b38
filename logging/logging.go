// Package logging builds the host's zap logger: console plus a rotated log
// file. Nothing here may be called from the real-time audio path.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the file sink.
const (
	DefaultMaxSizeMB  = 50
	DefaultMaxBackups = 5
	DefaultMaxAgeDays = 14
)

// Config controls where and how much the host logs.
type Config struct {
	Level       string `json:"level" yaml:"level"`             // debug, info, warn, error
	FilePath    string `json:"filePath" yaml:"filePath"`       // empty disables the file sink
	Development bool   `json:"development" yaml:"development"` // console encoder, colored levels
	MaxSizeMB   int    `json:"maxSizeMb" yaml:"maxSizeMb"`
	MaxBackups  int    `json:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays  int    `json:"maxAgeDays" yaml:"maxAgeDays"`
}

// New builds a logger from cfg. The console core always exists; the file
// core is added when FilePath is set, rotated via lumberjack.
func New(cfg Config) (*zap.Logger, error) {
	level := ParseLevel(cfg.Level, zapcore.InfoLevel)

	var consoleEnc zapcore.Encoder
	if cfg.Development {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		consoleEnc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    orDefault(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   true,
		}
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

// ParseLevel maps a level name to a zap level, case-insensitive. Unknown or
// empty names fall back to def.
func ParseLevel(name string, def zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return def
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
