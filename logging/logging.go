// Package logging provides categorized structured logging for the
// noetic packages. Each package logs through a named category so that
// log output can be filtered per concern.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	Store    Category = "store"
	Scope    Category = "scope"
	Rules    Category = "rules"
	Registry Category = "registry"
)

// Config controls the shared logger. Zero value means silent.
type Config struct {
	Level       string `yaml:"level"`
	Encoding    string `yaml:"encoding"`
	Development bool   `yaml:"development"`
}

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// Init builds the shared logger from cfg. Libraries embedding noetic
// that never call Init get a no-op logger.
func Init(cfg Config) error {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return fmt.Errorf("logging: parse level %q: %w", cfg.Level, err)
		}
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Encoding != "" {
		zc.Encoding = cfg.Encoding
	}

	logger, err := zc.Build()
	if err != nil {
		return fmt.Errorf("logging: build logger: %w", err)
	}

	mu.Lock()
	root = logger
	mu.Unlock()
	return nil
}

// SetLogger installs a caller-provided zap logger, for embedders that
// manage their own logging stack.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	mu.Lock()
	root = l
	mu.Unlock()
}

// L returns the sugared logger for a category.
func L(c Category) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(string(c)).Sugar()
}

// Sync flushes buffered log entries.
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return root.Sync()
}
