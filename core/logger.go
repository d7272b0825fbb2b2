package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger is the structured logging interface every component depends on.
// Components take a Logger rather than reaching for a package-level
// singleton, so tests can inject a NoOpLogger or a recording fake.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})
}

// ComponentAwareLogger tags every log line with the emitting component
// (e.g. "canvas", "director") without each call site repeating it.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. Used as the default in tests and by
// components constructed without an explicit Logger.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}

// RateLimiter gates repeated log lines to at most one per interval,
// preventing a stuck capture or vision failure loop from flooding output.
type RateLimiter struct {
	interval time.Duration
	mu       sync.Mutex
	lastTime time.Time
}

// NewRateLimiter returns a RateLimiter that allows at most one event per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow reports whether an event may proceed now. Only allowed events are
// recorded; a rejected attempt does not restart the interval.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) < r.interval {
		return false
	}
	r.lastTime = now
	return true
}

// LogLevel orders verbosity for ProductionLogger's shouldLog filter.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func parseLogLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ProductionLogger is the default Logger: JSON under Kubernetes or when
// ZONEPILOT_LOG_FORMAT=json is set, human-readable text otherwise, with
// Error-level lines rate limited to one per second, the limiter being shared
// by a logger and every logger derived from it via WithComponent.
type ProductionLogger struct {
	component    string
	level        LogLevel
	jsonFormat   bool
	out          io.Writer
	mu           sync.Mutex
	errorLimiter *RateLimiter
}

var (
	rootLoggerOnce sync.Once
	rootLogger     *ProductionLogger
)

// NewProductionLogger builds a standalone logger for the given component,
// reading ZONEPILOT_LOG_LEVEL / ZONEPILOT_LOG_FORMAT from the environment.
func NewProductionLogger(component string) *ProductionLogger {
	jsonFormat := os.Getenv("ZONEPILOT_LOG_FORMAT") == "json"
	if os.Getenv("ZONEPILOT_LOG_FORMAT") == "" && os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		jsonFormat = true
	}
	return &ProductionLogger{
		component:    component,
		level:        parseLogLevel(os.Getenv("ZONEPILOT_LOG_LEVEL")),
		jsonFormat:   jsonFormat,
		out:          os.Stderr,
		errorLimiter: NewRateLimiter(time.Second),
	}
}

// GetLogger returns the process-wide root logger, created once on first use.
func GetLogger() *ProductionLogger {
	rootLoggerOnce.Do(func() {
		rootLogger = NewProductionLogger("")
	})
	return rootLogger
}

// WithComponent returns a logger tagged with component, sharing the rate
// limiter and output so volume is bounded process-wide rather than per tag.
func (l *ProductionLogger) WithComponent(component string) Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &ProductionLogger{
		component:    component,
		level:        l.level,
		jsonFormat:   l.jsonFormat,
		out:          l.out,
		errorLimiter: l.errorLimiter,
	}
}

// SetOutput redirects where log lines are written. Intended for tests.
func (l *ProductionLogger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *ProductionLogger) shouldLog(level LogLevel) bool {
	return level >= l.level
}

func (l *ProductionLogger) log(level LogLevel, levelName, msg string, fields map[string]interface{}) {
	if !l.shouldLog(level) {
		return
	}
	if level == LevelError && l.errorLimiter != nil && !l.errorLimiter.Allow() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.jsonFormat {
		l.logJSON(levelName, msg, fields)
	} else {
		l.logText(levelName, msg, fields)
	}
}

func (l *ProductionLogger) logJSON(level, msg string, fields map[string]interface{}) {
	record := make(map[string]interface{}, len(fields)+4)
	for k, v := range fields {
		record[k] = v
	}
	record["level"] = level
	record["msg"] = msg
	record["time"] = time.Now().UTC().Format(time.RFC3339Nano)
	if l.component != "" {
		record["component"] = l.component
	}
	enc := json.NewEncoder(l.out)
	_ = enc.Encode(record)
}

func (l *ProductionLogger) logText(level, msg string, fields map[string]interface{}) {
	ts := time.Now().Format("15:04:05.000")
	comp := ""
	if l.component != "" {
		comp = " [" + l.component + "]"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s%s %s", ts, level, comp, msg)
	for k, v := range fields {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	fmt.Fprintln(l.out, b.String())
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(LevelInfo, "INFO", msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(LevelWarn, "WARN", msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(LevelError, "ERROR", msg, fields)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(LevelDebug, "DEBUG", msg, fields)
}
