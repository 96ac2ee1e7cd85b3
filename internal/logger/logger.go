// Package logger wraps log/slog with a process-wide JSON logger, sampled
// warning and error output, and counters that are incremented regardless of
// sampling so they can be reported by the health endpoint.
package logger

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// Type alias for slog.Level for easier usage
type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug // -4
	LevelInfo    = slog.LevelInfo  // 0
	LevelWarning = slog.LevelWarn  // 4
	LevelError   = slog.LevelError // 8
	LevelFatal   = slog.Level(12)  // 12
)

var (
	Logger          *slog.Logger
	errorSampleRate int32 = 1 // Log every error by default (configurable via ERROR_SAMPLE_RATE)
	programLevel          = new(slog.LevelVar)
)

// Counters reported by the health endpoint (incremented regardless of sampling)
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total5xxErrors atomic.Int64
	Total4xxErrors atomic.Int64
	Total400Errors atomic.Int64
	Total404Errors atomic.Int64
	Total429Errors atomic.Int64
	SlowRequests   atomic.Int64
	InvalidRules   atomic.Int64
)

func init() {
	programLevel.Set(slog.LevelInfo)
	SetLevelFromEnv("LOG_LEVEL", slog.LevelInfo)

	// ERROR_SAMPLE_RATE=100 logs 1% of warnings/errors
	if sampleStr := os.Getenv("ERROR_SAMPLE_RATE"); sampleStr != "" {
		if rate, err := strconv.Atoi(sampleStr); err == nil && rate > 0 {
			SetSampleRate(rate)
		}
	}

	SetOutput(os.Stdout)
}

// SetOutput replaces the destination of the JSON handler.
func SetOutput(w io.Writer) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: programLevel,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// SetSampleRate logs 1 out of every rate warnings and errors.
func SetSampleRate(rate int) {
	if rate < 1 {
		rate = 1
	}
	atomic.StoreInt32(&errorSampleRate, int32(rate))
}

// SetLevel sets the minimum log level for the logger
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a string level name to slog.Level
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, errors.Newf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// SetLevelFromEnv sets the log level from an environment variable.
// If the variable is not set or invalid, defaultLevel is used.
func SetLevelFromEnv(envVarName string, defaultLevel slog.Level) {
	level, err := ParseLevel(os.Getenv(envVarName))
	if err != nil {
		level = defaultLevel
	}
	programLevel.Set(level)
}

func shouldSample() bool {
	rate := atomic.LoadInt32(&errorSampleRate)
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// ============================================================================
// Logging Functions
// ============================================================================

// Trace logs a trace-level message (never sampled)
func Trace(msg string, args ...any) {
	Logger.Log(context.Background(), LevelTrace, msg, args...)
}

// Debug logs a debug-level message (never sampled)
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message (never sampled)
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a warning-level message WITH SAMPLING.
// The counter is always incremented, but log output is sampled.
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs an error-level message WITH SAMPLING.
// The counter is always incremented, but log output is sampled.
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs a fatal-level message and exits (never sampled)
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	os.Exit(1)
}

// ============================================================================
// Counter Helpers
// ============================================================================

// ErrorHttp5xx increments the 5xx counters.
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx increments the 4xx counters.
func WarnHttp4xx(status int) {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)

	switch status {
	case 400:
		Total400Errors.Add(1)
	case 404:
		Total404Errors.Add(1)
	case 429:
		Total429Errors.Add(1)
	}
}

// WarnSlowRequest increments the slow request counter.
func WarnSlowRequest() {
	SlowRequests.Add(1)
	TotalWarnings.Add(1)
}

// WarnInvalidRule logs a rule whose condition could not be compiled.
func WarnInvalidRule(ruleID string, err error) {
	InvalidRules.Add(1)
	Warn("skipping invalid rule", "rule_id", ruleID, "error", err)
}

// CounterSnapshot is a point-in-time copy of the counters.
type CounterSnapshot struct {
	Errors       int64 `json:"errors"`
	Warnings     int64 `json:"warnings"`
	Http5xx      int64 `json:"http5xx"`
	Http4xx      int64 `json:"http4xx"`
	Http400      int64 `json:"http400"`
	Http404      int64 `json:"http404"`
	Http429      int64 `json:"http429"`
	SlowRequests int64 `json:"slowRequests"`
	InvalidRules int64 `json:"invalidRules"`
}

// Counters returns the current counter values.
func Counters() CounterSnapshot {
	return CounterSnapshot{
		Errors:       TotalErrors.Load(),
		Warnings:     TotalWarnings.Load(),
		Http5xx:      Total5xxErrors.Load(),
		Http4xx:      Total4xxErrors.Load(),
		Http400:      Total400Errors.Load(),
		Http404:      Total404Errors.Load(),
		Http429:      Total429Errors.Load(),
		SlowRequests: SlowRequests.Load(),
		InvalidRules: InvalidRules.Load(),
	}
}
