// Package logging provides a rotating, level-aware logger built on log/slog
// for use across the graph, diff, and plan packages. The CLI layer (cmd/jetty)
// and the fetch coordinator use logrus.Fields directly for human-facing
// progress lines instead of going through this package.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

// Config holds logger configuration.
type Config struct {
	Level      Level
	OutputFile string // path to log file; empty means stdout only
	MaxSize    int64  // bytes before rotation (default 10MB)
	MaxBackups int    // number of rotated files to keep (default 3)
	JSONFormat bool   // JSON vs text handler
	AddSource  bool   // include file:line in records
}

// Logger wraps slog.Logger with rotation and a debug-mode flag.
type Logger struct {
	slog      *slog.Logger
	config    Config
	file      *os.File
	mu        sync.Mutex
	debugMode bool
}

var (
	global *Logger
	once   sync.Once
)

// Initialize sets up the global logger. Must run before any package-level call.
func Initialize(config Config) error {
	var initErr error
	once.Do(func() {
		l, err := NewLogger(config)
		if err != nil {
			initErr = fmt.Errorf("initialize logger: %w", err)
			return
		}
		global = l
	})
	return initErr
}

// NewLogger builds a standalone logger instance.
func NewLogger(config Config) (*Logger, error) {
	if config.MaxSize == 0 {
		config.MaxSize = 10 * 1024 * 1024
	}
	if config.MaxBackups == 0 {
		config.MaxBackups = 3
	}

	l := &Logger{config: config, debugMode: config.Level == DEBUG}

	writers := []io.Writer{os.Stdout}

	if config.OutputFile != "" {
		dir := filepath.Dir(config.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
		if err := l.rotateIfNeeded(); err != nil {
			return nil, fmt.Errorf("rotate logs: %w", err)
		}
		file, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", config.OutputFile, err)
		}
		l.file = file
		writers = append(writers, file)
	}

	multi := io.MultiWriter(writers...)
	opts := &slog.HandlerOptions{Level: toSlogLevel(config.Level), AddSource: config.AddSource}

	var handler slog.Handler
	if config.JSONFormat {
		handler = slog.NewJSONHandler(multi, opts)
	} else {
		handler = slog.NewTextHandler(multi, opts)
	}

	l.slog = slog.New(handler)
	return l, nil
}

func (l *Logger) rotateIfNeeded() error {
	if l.config.OutputFile == "" {
		return nil
	}
	info, err := os.Stat(l.config.OutputFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	if info.Size() < l.config.MaxSize {
		return nil
	}

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	for i := l.config.MaxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i)
		newPath := fmt.Sprintf("%s.%d", l.config.OutputFile, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}

	backupPath := fmt.Sprintf("%s.1", l.config.OutputFile)
	if err := os.Rename(l.config.OutputFile, backupPath); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return nil
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DEBUG:
		return slog.LevelDebug
	case INFO:
		return slog.LevelInfo
	case WARN:
		return slog.LevelWarn
	case ERROR, FATAL:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Fatal logs at error level then exits the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.slog.Error(msg, args...)
	l.Close()
	os.Exit(1)
}

// With returns a derived logger carrying additional structured fields.
func (l *Logger) With(args ...any) *Logger {
	derived := *l
	derived.slog = l.slog.With(args...)
	return &derived
}

// Close closes the log file, if one is open.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

func Debug(msg string, args ...any) { dispatch(DEBUG, msg, args...) }
func Info(msg string, args ...any)  { dispatch(INFO, msg, args...) }
func Warn(msg string, args ...any)  { dispatch(WARN, msg, args...) }
func Error(msg string, args ...any) { dispatch(ERROR, msg, args...) }

func dispatch(level Level, msg string, args ...any) {
	if global != nil {
		switch level {
		case DEBUG:
			global.Debug(msg, args...)
		case WARN:
			global.Warn(msg, args...)
		case ERROR:
			global.Error(msg, args...)
		default:
			global.Info(msg, args...)
		}
		return
	}
	switch level {
	case DEBUG:
		slog.Debug(msg, args...)
	case WARN:
		slog.Warn(msg, args...)
	case ERROR:
		slog.Error(msg, args...)
	default:
		slog.Info(msg, args...)
	}
}

// Fatal logs an error on the global logger (or the default slog logger) then exits.
func Fatal(msg string, args ...any) {
	if global != nil {
		global.Fatal(msg, args...)
		return
	}
	slog.Error(msg, args...)
	os.Exit(1)
}

// With derives from the global logger; returns nil if the global logger isn't initialized.
func With(args ...any) *Logger {
	if global != nil {
		return global.With(args...)
	}
	return nil
}

// Close closes the global logger's file, if any.
func Close() error {
	if global != nil {
		return global.Close()
	}
	return nil
}

// IsDebugEnabled reports whether the global logger is in debug mode.
func IsDebugEnabled() bool {
	return global != nil && global.debugMode
}

// DefaultConfig returns a sensible default, text in debug mode and JSON otherwise.
func DefaultConfig(debugMode bool) Config {
	level := INFO
	if debugMode {
		level = DEBUG
	}
	logDir := "logs"
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	logFile := filepath.Join(logDir, fmt.Sprintf("jetty_%s.log", timestamp))

	return Config{
		Level:      level,
		OutputFile: logFile,
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 3,
		JSONFormat: !debugMode,
		AddSource:  debugMode,
	}
}

// DebugConfig logs to stdout only, in text form, with source locations.
func DebugConfig() Config {
	return Config{Level: DEBUG, JSONFormat: false, AddSource: true}
}

// ProductionConfig logs JSON to logFile with larger rotation thresholds.
func ProductionConfig(logFile string) Config {
	return Config{
		Level:      INFO,
		OutputFile: logFile,
		MaxSize:    50 * 1024 * 1024,
		MaxBackups: 10,
		JSONFormat: true,
		AddSource:  false,
	}
}
