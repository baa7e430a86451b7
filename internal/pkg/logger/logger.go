// Package logger — обертка над zap для всего бота.
package logger

import (
	"go.uber.org/zap"
)

// Logger оборачивает zap.Logger.
type Logger struct {
	*zap.Logger
}

// CreateLogger создает production-логгер zap с заданным уровнем.
func CreateLogger(level string) (*Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return &Logger{Logger: zap.NewNop()}, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl

	zl, err := cfg.Build()
	if err != nil {
		return &Logger{Logger: zap.NewNop()}, err
	}

	return &Logger{Logger: zl}, nil
}

// Nop возвращает логгер, который ничего не пишет (для тестов).
func Nop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}
