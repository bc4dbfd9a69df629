package common

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "info"
	}
}

// ToSlogLevel converts LogLevel to slog.Level
func (l LogLevel) ToSlogLevel() slog.Level {
	switch l {
	case LogLevelError:
		return slog.LevelError
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// ParseLogLevel maps a config string to a LogLevel. Unknown values map to info.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return LogLevelError
	case "warn", "warning":
		return LogLevelWarn
	case "debug":
		return LogLevelDebug
	default:
		return LogLevelInfo
	}
}

// Output formats accepted by NewLoggerTo.
const (
	FormatText  = "text"
	FormatJSON  = "json"
	FormatColor = "color"
)

// Logger wraps slog.Logger with migration-specific context helpers.
// A Logger is passed explicitly to the engine and its collaborators;
// the package default only serves the command line.
type Logger struct {
	*slog.Logger
	level LogLevel
}

// NewLogger creates a text logger on stdout.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, level, FormatText)
}

// NewJSONLogger creates a JSON logger on stdout.
func NewJSONLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, level, FormatJSON)
}

// NewColorLogger creates a colorized text logger on stdout.
func NewColorLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, level, FormatColor)
}

// NewLoggerTo creates a logger writing to w in the given format.
// Sensitive values (passwords in connection strings and the like) are masked
// for every format.
func NewLoggerTo(w io.Writer, level LogLevel, format string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       level.ToSlogLevel(),
		ReplaceAttr: maskAttr,
	}
	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	case FormatColor:
		ch := NewColorHandler(w, opts)
		ch.SetColorEnabled(true)
		handler = ch
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler), level: level}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return NewLoggerTo(io.Discard, LogLevelError, FormatText)
}

func maskAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	masked := globalMasker.MaskValue(a.Key, a.Value.String())
	if s, ok := masked.(string); ok && s != a.Value.String() {
		return slog.String(a.Key, s)
	}
	return a
}

// Level returns the current log level
func (l *Logger) Level() LogLevel {
	return l.level
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), level: l.level}
}

// WithComponent returns a logger with component context
func (l *Logger) WithComponent(component string) *Logger {
	return l.with("component", component)
}

// WithStore returns a logger with store driver context
func (l *Logger) WithStore(driver string) *Logger {
	return l.with("store", driver)
}

// WithChangeset returns a logger scoped to one changeset
func (l *Logger) WithChangeset(author, id string) *Logger {
	return l.with("author", author, "changeset", id)
}

// WithCollection returns a logger with collection context
func (l *Logger) WithCollection(name string) *Logger {
	return l.with("collection", name)
}

// WithOwner returns a logger with lock owner context
func (l *Logger) WithOwner(owner string) *Logger {
	return l.with("owner", owner)
}

var defaultLogger = NewLogger(LogLevelInfo)

// SetDefaultLogger sets the global default logger
func SetDefaultLogger(logger *Logger) {
	if logger != nil {
		defaultLogger = logger
	}
}

// GetLogger returns the default logger
func GetLogger() *Logger {
	return defaultLogger
}

// OrDefault returns l, or the default logger when l is nil.
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return defaultLogger
	}
	return l
}
