// Package logger holds the zap logger shared by the katapayadi packages.
package logger

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu  sync.RWMutex
	log = zap.NewNop()
)

// Get returns the shared logger. It uses a no-op logger by default.
func Get() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// Set replaces the shared logger. A nil logger restores the no-op logger.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}

	mu.Lock()
	log = l
	mu.Unlock()
}
