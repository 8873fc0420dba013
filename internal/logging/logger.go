// Package logging provides structured logging for the server.
//
// Every line goes to stderr or a rotated log file, never to stdout: stdout is
// reserved for JSON-RPC responses (see internal/rpc), and a single stray log
// line there would break every host parsing the stream.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component constants for structured logging.
const (
	CompRPC          = "rpc"
	CompTools        = "tools"
	CompConfig       = "config"
	CompPane         = "pane"
	CompReady        = "ready"
	CompOrchestrator = "orchestrator"
	CompEnvironment  = "environment"
	CompAutosync     = "autosync"
	CompWizard       = "wizard"
	CompDocker       = "docker"
	CompHistory      = "history"
)

// Config holds logging configuration.
type Config struct {
	// LogDir is the directory for the rotated log file (e.g. ~/.remote-terminal).
	// Empty means "no file" — in that case logs go to stderr only when Debug is set.
	LogDir string

	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string

	// Debug mirrors the REMOTE_TERMINAL_DEBUG environment variable; when set,
	// level defaults to "debug" and diagnostics are mirrored to stderr.
	Debug bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool

	AggregateIntervalSecs int
}

var (
	globalLogger *slog.Logger
	globalAgg    *Aggregator
	globalMu     sync.RWMutex
	lumberjackW  *lumberjack.Logger
)

// Init initializes the global logging system. Safe to call once at startup;
// ForComponent loggers created before Init pick up the real handler lazily.
func Init(cfg Config) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	if cfg.MaxAgeDays <= 0 {
		cfg.MaxAgeDays = 10
	}
	if cfg.AggregateIntervalSecs <= 0 {
		cfg.AggregateIntervalSecs = 30
	}

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Debug && cfg.Level == "" {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if cfg.LogDir != "" {
		lumberjackW = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "server.log"),
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		handlers = append(handlers, slog.NewJSONHandler(lumberjackW, handlerOpts))
	}
	if cfg.Debug {
		if stderrIsTerminal() {
			handlers = append(handlers, newColoredHandler(os.Stderr, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, handlerOpts))
		}
	}

	var rootHandler slog.Handler
	switch len(handlers) {
	case 0:
		rootHandler = slog.NewJSONHandler(io.Discard, handlerOpts)
	case 1:
		rootHandler = handlers[0]
	default:
		rootHandler = &multiHandler{handlers: handlers}
	}

	globalLogger = slog.New(rootHandler)
	globalAgg = NewAggregator(globalLogger, cfg.AggregateIntervalSecs)
	globalAgg.Start()
}

// Logger returns the global logger. Safe to call before Init (returns a
// discarding logger).
func Logger() *slog.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	if globalLogger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return globalLogger
}

// ForComponent returns a sub-logger tagged with a component field. The
// returned logger delegates to the current global handler at log time, so
// package-level vars created before Init still work.
func ForComponent(name string) *slog.Logger {
	return slog.New(&dynamicHandler{component: name})
}

type dynamicHandler struct {
	component string
	attrs     []slog.Attr
	group     string
}

func (h *dynamicHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return Logger().Handler().Enabled(ctx, level)
}

func (h *dynamicHandler) Handle(ctx context.Context, r slog.Record) error {
	handler := Logger().Handler()
	handler = handler.WithAttrs([]slog.Attr{slog.String("component", h.component)})
	if len(h.attrs) > 0 {
		handler = handler.WithAttrs(h.attrs)
	}
	if h.group != "" {
		handler = handler.WithGroup(h.group)
	}
	return handler.Handle(ctx, r)
}

func (h *dynamicHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &dynamicHandler{component: h.component, attrs: newAttrs, group: h.group}
}

func (h *dynamicHandler) WithGroup(name string) slog.Handler {
	return &dynamicHandler{component: h.component, attrs: h.attrs, group: name}
}

// Aggregate records a high-frequency event for batched logging, used by the
// orchestrator's polling loops so a 120s poll at 5s intervals doesn't spam
// the log with one line per tick.
func Aggregate(component, key string, fields ...slog.Attr) {
	globalMu.RLock()
	agg := globalAgg
	globalMu.RUnlock()
	if agg != nil {
		agg.Record(component, key, fields...)
	}
}

// Shutdown flushes the aggregator and closes the log file.
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalAgg != nil {
		globalAgg.Stop()
		globalAgg = nil
	}
	if lumberjackW != nil {
		lumberjackW.Close()
		lumberjackW = nil
	}
	globalLogger = nil
}
