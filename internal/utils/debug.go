package utils

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

var (
	logMu     sync.RWMutex
	logger    = slog.New(slog.DiscardHandler)
	debugFile *os.File
)

// EnableDebugLog routes the process logger to a text log at path.
func EnableDebugLog(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}

	logMu.Lock()
	defer logMu.Unlock()
	if debugFile != nil {
		_ = debugFile.Close()
	}
	debugFile = f
	logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return nil
}

// CloseDebugLog flushes and closes the debug log, reverting to a discarding logger.
func CloseDebugLog() error {
	logMu.Lock()
	defer logMu.Unlock()
	logger = slog.New(slog.DiscardHandler)
	if debugFile == nil {
		return nil
	}
	err := debugFile.Close()
	debugFile = nil
	return err
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// Debug writes a formatted message to the debug log
func Debug(format string, args ...any) {
	Logger().Debug(fmt.Sprintf(format, args...))
}
