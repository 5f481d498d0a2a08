// Package logger - настройка структурированного логирования (zap)
package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	global *zap.Logger = zap.NewNop()
	mu     sync.RWMutex
)

// Init инициализирует глобальный logger
//
// Параметры:
//   - level: debug, info, warn, error
//   - format: json (production) или console (разработка)
func Init(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	log, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return nil, err
	}

	mu.Lock()
	global = log
	mu.Unlock()

	return log, nil
}

// L возвращает глобальный logger (no-op до вызова Init)
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync сбрасывает буферы логов (вызывается при shutdown)
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = global.Sync()
}
