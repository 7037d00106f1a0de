// Package logger handles the append-only debug log.
//
// logger.go - throttled file logger
//
// This file contains:
// - A guarded singleton writing to a fixed temp path
// - Printf-style package functions that are no-ops until Init succeeds
// - A rate limit so a chatty runner cannot flood the disk
//
// The log records spawn and exit details (command, resolved path, cwd,
// PATH). Its absence never changes behavior: every function silently
// does nothing when the file could not be opened.

package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPath is the fixed temp path for the debug log.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), "warden-debug.log")
}

var (
	instance *Logger
	once     sync.Once
)

// Logger writes throttled, timestamped lines to a single file.
type Logger struct {
	logger  *log.Logger
	logFile *os.File
	limiter *rate.Limiter
	mu      sync.Mutex
}

// Init opens the debug log at path (empty selects DefaultPath). Safe
// to call more than once; only the first call takes effect. Failure to
// open the file is returned but leaves the package in its no-op state.
func Init(path string) error {
	var initErr error
	once.Do(func() {
		instance, initErr = newLogger(path)
	})
	return initErr
}

func newLogger(path string) (*Logger, error) {
	if path == "" {
		path = DefaultPath()
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	return &Logger{
		logger:  log.New(logFile, "", log.LstdFlags|log.Lmicroseconds),
		logFile: logFile,
		// 50 lines/second sustained, bursts of 200.
		limiter: rate.NewLimiter(rate.Limit(50), 200),
	}, nil
}

// Close closes the log file.
func Close() error {
	if instance != nil && instance.logFile != nil {
		return instance.logFile.Close()
	}
	return nil
}

// Printf logs a formatted line, subject to the rate limit.
func Printf(format string, v ...any) {
	if instance == nil {
		return
	}
	if !instance.limiter.Allow() {
		return
	}
	instance.mu.Lock()
	defer instance.mu.Unlock()
	instance.logger.Printf(format, v...)
}

// Spawn records a subprocess launch.
func Spawn(runnerID, engine, exe string, argv []string, cwd string) {
	Printf("spawn runner=%s engine=%s exe=%s argv=%v cwd=%s path=%s",
		runnerID, engine, exe, truncateArgs(argv), cwd, os.Getenv("PATH"))
}

// Exit records a subprocess exit.
func Exit(runnerID, outcome string, d time.Duration) {
	Printf("exit runner=%s outcome=%s elapsed=%s", runnerID, outcome, d.Round(time.Millisecond))
}

// truncateArgs keeps logged argv lines readable. The prompt argument
// of an engine invocation can be arbitrarily large.
func truncateArgs(argv []string) []string {
	const max = 160
	out := make([]string, len(argv))
	for i, a := range argv {
		if len(a) > max {
			a = a[:max] + "..."
		}
		out[i] = a
	}
	return out
}
