package utils

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// LogLevel represents an enumeration of log levels
type LogLevel int

const (
	Critical LogLevel = 50
	Fatal    LogLevel = Critical
	Error    LogLevel = 40
	Warning  LogLevel = 30
	Info     LogLevel = 20
	Debug    LogLevel = 10
	NotSet   LogLevel = 0
)

// Logger provides key=value logging scoped to a component prefix.
type Logger struct {
	prefix   string
	fields   []interface{}
	logger   *log.Logger
	mu       *sync.Mutex
	logLevel *LogLevel
}

// NewLogger creates a new logger with a given prefix writing to stdout.
func NewLogger(prefix string, logLevel ...LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, prefix, logLevel...)
}

// NewLoggerTo creates a logger writing to w.
func NewLoggerTo(w io.Writer, prefix string, logLevel ...LogLevel) *Logger {
	level := Warning
	if len(logLevel) > 0 {
		level = logLevel[0]
	}
	return &Logger{
		prefix:   prefix,
		logger:   log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags),
		mu:       &sync.Mutex{},
		logLevel: &level,
	}
}

// With returns a child logger that appends keyvals to every line.
// The child shares output and level with its parent.
func (l *Logger) With(keyvals ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keyvals))
	fields = append(fields, l.fields...)
	fields = append(fields, keyvals...)
	return &Logger{
		prefix:   l.prefix,
		fields:   fields,
		logger:   l.logger,
		mu:       l.mu,
		logLevel: l.logLevel,
	}
}

// SetLogLevel sets the logging level
func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.logLevel = logLevel
}

func (l *Logger) log(level LogLevel, tag, msg string, keyvals ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if *l.logLevel > level {
		return
	}
	l.logger.Println(l.formatMessage(tag, msg, keyvals...))
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.log(Info, "INFO", msg, keyvals...)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.log(Error, "ERROR", msg, keyvals...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.log(Warning, "WARN", msg, keyvals...)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.log(Debug, "DEBUG", msg, keyvals...)
}

func (l *Logger) formatMessage(level, msg string, keyvals ...interface{}) string {
	formatted := fmt.Sprintf("[%s] %s", level, msg)
	all := append(append([]interface{}{}, l.fields...), keyvals...)
	for i := 0; i+1 < len(all); i += 2 {
		formatted += fmt.Sprintf(" %v=%v", all[i], all[i+1])
	}
	return formatted
}
