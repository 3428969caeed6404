package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// OutputFormat selects the slog handler used for log records.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

var (
	// testOutput is used to capture log output during tests
	testOutput   io.Writer
	testOutputMu sync.Mutex
)

// Fields is a type alias for log fields to make the API cleaner
type Fields map[string]interface{}

var (
	logger       *slog.Logger
	currentLevel = new(slog.LevelVar)
)

// SetTestOutput sets the output writer for testing purposes
func SetTestOutput(w io.Writer) {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = w
}

// UnsetTestOutput resets the test output to nil
func UnsetTestOutput() {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	testOutput = nil
}

// Log records go to stderr so that command output on stdout stays pipeable.
func getOutput() io.Writer {
	testOutputMu.Lock()
	defer testOutputMu.Unlock()
	if testOutput != nil {
		return testOutput
	}
	return os.Stderr
}

// ParseLevel maps a config/flag level name to a slog level, defaulting to info.
func ParseLevel(logLevel string) slog.Level {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// InitLogger initializes the global logger for CLI operations.
func InitLogger(logLevel string, format OutputFormat) {
	currentLevel.Set(ParseLevel(logLevel))
	logger = slog.New(newHandler(format))
}

// SetOutputFormat swaps the handler while keeping the configured level.
func SetOutputFormat(format OutputFormat) {
	logger = slog.New(newHandler(format))
}

func newHandler(format OutputFormat) slog.Handler {
	opts := &slog.HandlerOptions{Level: currentLevel}
	if format == FormatJSON {
		return slog.NewJSONHandler(getOutput(), opts)
	}
	return slog.NewTextHandler(getOutput(), opts)
}

// GetLogger returns the configured logger instance.
func GetLogger() *slog.Logger {
	if logger == nil {
		InitLogger("info", FormatText)
	}
	return logger
}

// Info logs an info message.
func Info(msg string, fields ...Fields) {
	GetLogger().Info(msg, mergeFields(fields...)...)
}

// Debug logs a debug message (only shown when debug level is enabled).
func Debug(msg string, fields ...Fields) {
	GetLogger().Debug(msg, mergeFields(fields...)...)
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) {
	GetLogger().Debug(fmt.Sprintf(format, args...))
}

// Error logs an error message.
func Error(msg string, fields ...Fields) {
	GetLogger().Error(msg, mergeFields(fields...)...)
}

// ErrorfWithFields logs a formatted error message with fields.
func ErrorfWithFields(fields Fields, format string, args ...interface{}) {
	GetLogger().Error(fmt.Sprintf(format, args...), mergeFields(fields)...)
}

// Warn logs a warning message.
func Warn(msg string, fields ...Fields) {
	GetLogger().Warn(msg, mergeFields(fields...)...)
}

// WarnfWithFields logs a formatted warning message with fields.
func WarnfWithFields(fields Fields, format string, args ...interface{}) {
	GetLogger().Warn(fmt.Sprintf(format, args...), mergeFields(fields)...)
}

// Success logs a success message as info with success indicator.
func Success(msg string, fields ...Fields) {
	attrs := append(mergeFields(fields...), "status", "success")
	GetLogger().Info(msg, attrs...)
}

// mergeFields merges multiple field maps into one slice of key-value pairs for slog.
func mergeFields(fields ...Fields) []interface{} {
	result := []interface{}{}
	for _, field := range fields {
		for k, v := range field {
			result = append(result, k, v)
		}
	}
	return result
}
