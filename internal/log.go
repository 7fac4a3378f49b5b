// Package internal carries the process-wide plumbing shared by every
// layer, chiefly the leveled logger.
package internal

import (
	"io"
	"log"
	"os"
	"strings"
)

// LogLevel represents logging verbosity.
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLogLevel maps a level name to a LogLevel, case-insensitively.
// Unknown or empty names fall back to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LogLevelError
	case "WARN":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

// Logger provides leveled printf logging. Each instance owns its sink, so
// tests can capture output without touching process-wide state.
type Logger struct {
	level LogLevel
	name  string
	out   *log.Logger
}

// NewLogger creates a logger at the given level writing to stderr.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stderr, level)
}

// NewLoggerTo creates a logger at the given level writing to w.
func NewLoggerTo(w io.Writer, level LogLevel) *Logger {
	return &Logger{level: level, out: log.New(w, "", log.LstdFlags)}
}

// NewDefaultLogger creates a logger honouring the LOG_LEVEL environment
// variable.
func NewDefaultLogger() *Logger {
	return NewLogger(ParseLogLevel(os.Getenv("LOG_LEVEL")))
}

// Named returns a copy of the logger that tags every line with a
// subsystem name.
func (l *Logger) Named(name string) *Logger {
	named := *l
	named.name = name
	return &named
}

// Error logs error messages.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(LogLevelError, "ERROR", format, args...)
}

// Warn logs warning messages.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(LogLevelWarn, "WARN", format, args...)
}

// Info logs info messages.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(LogLevelInfo, "INFO", format, args...)
}

// Debug logs debug messages.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(LogLevelDebug, "DEBUG", format, args...)
}

// Trace logs trace messages.
func (l *Logger) Trace(format string, args ...interface{}) {
	l.log(LogLevelTrace, "TRACE", format, args...)
}

// GetLevel returns the configured level.
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

func (l *Logger) log(level LogLevel, tag, format string, args ...interface{}) {
	if l.level < level {
		return
	}
	prefix := "[" + tag + "] "
	if l.name != "" {
		prefix += l.name + ": "
	}
	l.out.Printf(prefix+format, args...)
}

// DefaultLogger is the process-wide instance.
var DefaultLogger = NewDefaultLogger()
