package core

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// LogLevel filters what the blog writes to its log.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

var logLevelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelFatal {
		return "UNKNOWN"
	}
	return logLevelNames[l]
}

// Logger is the leveled logger used throughout the blog server. Entries
// carry a timestamp, the level and the calling file:line, so a "route
// claimed twice" warning can be traced back to the plugin that raised it.
type Logger struct {
	level  LogLevel
	logger *log.Logger
}

func NewLogger(level LogLevel) *Logger {
	return &Logger{
		level:  level,
		logger: log.New(os.Stdout, "", 0),
	}
}

// SetLevel sets the minimum level that gets written.
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// SetOutput redirects the log, mainly for tests.
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

func (l *Logger) log(level LogLevel, format string, args ...any) {
	if level < l.level {
		return
	}

	// Attribute the entry to the caller of Debug/Info/..., not to this file
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		file = "unknown"
		line = 0
	}

	l.logger.Printf("[%s] %s %s:%d %s",
		time.Now().Format("2006-01-02 15:04:05.000"),
		level, filepath.Base(file), line,
		fmt.Sprintf(format, args...))

	if level == LogLevelFatal {
		os.Exit(1)
	}
}

func (l *Logger) Debug(format string, args ...any) { l.log(LogLevelDebug, format, args...) }
func (l *Logger) Info(format string, args ...any)  { l.log(LogLevelInfo, format, args...) }
func (l *Logger) Warn(format string, args ...any)  { l.log(LogLevelWarn, format, args...) }
func (l *Logger) Error(format string, args ...any) { l.log(LogLevelError, format, args...) }

// Fatal logs the message and exits the process.
func (l *Logger) Fatal(format string, args ...any) { l.log(LogLevelFatal, format, args...) }

// GlobalLogger backs the package-level helpers below; the whole tree logs
// through it.
var GlobalLogger = NewLogger(LogLevelInfo)

func Debug(format string, args ...any) { GlobalLogger.Debug(format, args...) }
func Info(format string, args ...any)  { GlobalLogger.Info(format, args...) }
func Warn(format string, args ...any)  { GlobalLogger.Warn(format, args...) }
func Error(format string, args ...any) { GlobalLogger.Error(format, args...) }
func Fatal(format string, args ...any) { GlobalLogger.Fatal(format, args...) }
