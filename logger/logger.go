// Package logger provides leveled, context-carried logging in the style used throughout
// this codebase: a Config is attached to a context.Context once near the top of a program,
// and call sites log through the package-level functions without ever holding a logger
// value themselves.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is a logging severity.
type Level int

// Severities, lowest to highest.
const (
	LevelDebug Level = iota
	LevelVerbose
	LevelInfo
	LevelWarn
	LevelError
	LevelPanic
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBG"
	case LevelVerbose:
		return "VERB"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERRO"
	case LevelPanic:
		return "PANC"
	default:
		return "????"
	}
}

// Config controls where and at what severity log entries are written. It is safe for
// concurrent use.
type Config struct {
	mu       sync.Mutex
	minLevel Level
	output   io.Writer

	subSystems map[string]bool // nil means all subsystems are included
}

// NewConfig builds a Config writing to filePath, or to stderr if filePath is empty. In
// development mode the minimum level is LevelDebug; otherwise it is LevelInfo.
func NewConfig(isDevelopment bool, filePath string) *Config {
	minLevel := LevelInfo
	if isDevelopment {
		minLevel = LevelDebug
	}

	output := io.Writer(os.Stderr)
	if filePath != "" {
		if f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = f
		}
	}

	return &Config{minLevel: minLevel, output: output}
}

// NewEmptyConfig builds a Config that discards every entry.
func NewEmptyConfig() *Config {
	return &Config{minLevel: LevelPanic + 1, output: io.Discard}
}

// EnableSubSystem restricts logging to the named subsystems. Once any subsystem is
// enabled, entries logged outside of ContextWithLogSubSystem are still written; entries
// tagged with a subsystem not in this set are dropped.
func (c *Config) EnableSubSystem(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subSystems == nil {
		c.subSystems = make(map[string]bool)
	}
	c.subSystems[name] = true
}

func (c *Config) includes(subSystem string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if subSystem == "" || c.subSystems == nil {
		return true
	}
	return c.subSystems[subSystem]
}

func (c *Config) write(entry string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	io.WriteString(c.output, entry)
}

type contextKey int

const (
	configKey contextKey = iota
	subSystemKey
	traceKey
)

// ContextWithLogConfig attaches config to ctx. Logging calls on the returned context (and
// its children) use it.
func ContextWithLogConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey, config)
}

// ContextWithNoLogger attaches a config that discards every entry.
func ContextWithNoLogger(ctx context.Context) context.Context {
	return context.WithValue(ctx, configKey, NewEmptyConfig())
}

// ContextWithLogSubSystem tags ctx with a subsystem name, included in every entry and
// checked against any subsystem filter set with Config.EnableSubSystem.
func ContextWithLogSubSystem(ctx context.Context, subSystem string) context.Context {
	return context.WithValue(ctx, subSystemKey, subSystem)
}

// ContextWithOutLogSubSystem removes any subsystem tag from ctx.
func ContextWithOutLogSubSystem(ctx context.Context) context.Context {
	return context.WithValue(ctx, subSystemKey, "")
}

// ContextWithLogTrace tags ctx with a trace id, included in every entry.
func ContextWithLogTrace(ctx context.Context, trace string) context.Context {
	return context.WithValue(ctx, traceKey, trace)
}

func configFromContext(ctx context.Context) *Config {
	if config, ok := ctx.Value(configKey).(*Config); ok {
		return config
	}
	return nil
}

func subSystemFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subSystemKey).(string)
	return s
}

func traceFromContext(ctx context.Context) string {
	t, _ := ctx.Value(traceKey).(string)
	return t
}

// Log writes an entry at level if ctx carries a Config, the level meets its minimum, and
// its subsystem (if any) passes the configured filter.
func Log(ctx context.Context, level Level, format string, values ...interface{}) {
	config := configFromContext(ctx)
	if config == nil {
		return
	}

	subSystem := subSystemFromContext(ctx)
	if level < config.minLevel || !config.includes(subSystem) {
		return
	}

	var b []byte
	b = append(b, time.Now().UTC().Format("2006-01-02T15:04:05.000Z")...)
	b = append(b, ' ')
	b = append(b, level.String()...)
	if subSystem != "" {
		b = append(b, " ["...)
		b = append(b, subSystem...)
		b = append(b, ']')
	}
	if trace := traceFromContext(ctx); trace != "" {
		b = append(b, " ("...)
		b = append(b, trace...)
		b = append(b, ')')
	}
	b = append(b, ' ')
	b = append(b, fmt.Sprintf(format, values...)...)
	b = append(b, '\n')

	config.write(string(b))
}

// Debug logs at LevelDebug.
func Debug(ctx context.Context, format string, values ...interface{}) {
	Log(ctx, LevelDebug, format, values...)
}

// Verbose logs at LevelVerbose.
func Verbose(ctx context.Context, format string, values ...interface{}) {
	Log(ctx, LevelVerbose, format, values...)
}

// Info logs at LevelInfo.
func Info(ctx context.Context, format string, values ...interface{}) {
	Log(ctx, LevelInfo, format, values...)
}

// Warn logs at LevelWarn.
func Warn(ctx context.Context, format string, values ...interface{}) {
	Log(ctx, LevelWarn, format, values...)
}

// Error logs at LevelError.
func Error(ctx context.Context, format string, values ...interface{}) {
	Log(ctx, LevelError, format, values...)
}

// Panic logs at LevelPanic then panics with the formatted message.
func Panic(ctx context.Context, format string, values ...interface{}) {
	Log(ctx, LevelPanic, format, values...)
	panic(fmt.Sprintf(format, values...))
}

// Fatal logs at LevelPanic then exits the process.
func Fatal(ctx context.Context, format string, values ...interface{}) {
	Log(ctx, LevelPanic, format, values...)
	os.Exit(1)
}

// Elapsed logs the number of milliseconds since start at LevelInfo.
func Elapsed(ctx context.Context, start time.Time, format string, values ...interface{}) {
	msg := fmt.Sprintf(format, values...)
	Log(ctx, LevelInfo, "%s : %0.3f ms", msg, float64(time.Since(start).Microseconds())/1000.0)
}
