// Package interfaces defines core domain contracts.
//
//nolint:revive // Package name 'interfaces' is intentional for domain layer
package interfaces

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger defines the interface for structured logging
type Logger interface {
	// Debug logs debug-level messages
	Debug(msg string, fields ...Field)

	// Info logs informational messages
	Info(msg string, fields ...Field)

	// Warn logs warning messages
	Warn(msg string, fields ...Field)

	// Error logs error messages
	Error(msg string, fields ...Field)
}

// Field represents a structured log field
type Field struct {
	Key   string
	Value interface{}
}

// F creates a new Field (convenience function)
func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// Level orders log severities
type Level int

// Log levels
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

// ParseLevel maps "debug", "info", "warn" and "error" to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NoOpLogger is a logger that does nothing (useful for tests)
type NoOpLogger struct{}

// Debug does nothing (no-op implementation)
func (n *NoOpLogger) Debug(_ string, _ ...Field) {}

// Info does nothing (no-op implementation)
func (n *NoOpLogger) Info(_ string, _ ...Field) {}

// Warn does nothing (no-op implementation)
func (n *NoOpLogger) Warn(_ string, _ ...Field) {}

// Error does nothing (no-op implementation)
func (n *NoOpLogger) Error(_ string, _ ...Field) {}

// StdoutLogger writes leveled key=value lines. Concurrent jobs share one
// logger, so writes are serialized.
type StdoutLogger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel Level
	now      func() time.Time
}

// NewStdoutLogger creates a logger writing to w at or above minLevel.
// A nil writer means os.Stderr.
func NewStdoutLogger(w io.Writer, minLevel Level) *StdoutLogger {
	if w == nil {
		w = os.Stderr
	}
	return &StdoutLogger{out: w, minLevel: minLevel, now: time.Now}
}

// Debug logs debug-level messages
func (s *StdoutLogger) Debug(msg string, fields ...Field) {
	s.log(LevelDebug, msg, fields)
}

// Info logs informational messages
func (s *StdoutLogger) Info(msg string, fields ...Field) {
	s.log(LevelInfo, msg, fields)
}

// Warn logs warning messages
func (s *StdoutLogger) Warn(msg string, fields ...Field) {
	s.log(LevelWarn, msg, fields)
}

func (s *StdoutLogger) Error(msg string, fields ...Field) {
	s.log(LevelError, msg, fields)
}

func (s *StdoutLogger) log(level Level, msg string, fields []Field) {
	if level < s.minLevel {
		return
	}

	var b strings.Builder
	b.WriteString(s.now().Format("15:04:05"))
	b.WriteString(" ")
	b.WriteString(level.String())
	b.WriteString(": ")
	b.WriteString(msg)
	for _, f := range fields {
		value := fmt.Sprint(f.Value)
		if strings.ContainsAny(value, " \t\"") {
			value = fmt.Sprintf("%q", value)
		}
		b.WriteString(" " + f.Key + "=" + value)
	}
	b.WriteString("\n")

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.out, b.String())
}
