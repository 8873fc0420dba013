package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// ANSI SGR codes for level-colored debug output. Colorizing stderr is
// strictly cosmetic: the file log (when configured) always stays plain
// JSON so log shippers never have to strip escape codes.
const (
	colorReset  = "\x1b[0m"
	colorGray   = "\x1b[90m"
	colorCyan   = "\x1b[36m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
)

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorCyan
	default:
		return colorGray
	}
}

// stderrIsTerminal reports whether stderr is attached to an interactive
// terminal. Debug-mode stderr diagnostics are colorized only then — a
// redirected or piped stderr (the common case once this server is
// launched by an MCP host) gets the same plain JSON as the file log.
func stderrIsTerminal() bool {
	return term.IsTerminal(int(os.Stderr.Fd()))
}

// coloredHandler wraps slog.NewTextHandler, writing each whole line in an
// ANSI color chosen by its level so debug-mode stderr output is easier to
// scan by eye in an interactive shell.
type coloredHandler struct {
	inner slog.Handler
	out   io.Writer
}

func newColoredHandler(w io.Writer, opts *slog.HandlerOptions) *coloredHandler {
	return &coloredHandler{inner: slog.NewTextHandler(w, opts), out: w}
}

func (h *coloredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *coloredHandler) Handle(ctx context.Context, r slog.Record) error {
	fmt.Fprint(h.out, levelColor(r.Level))
	err := h.inner.Handle(ctx, r)
	fmt.Fprint(h.out, colorReset)
	return err
}

func (h *coloredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &coloredHandler{inner: h.inner.WithAttrs(attrs), out: h.out}
}

func (h *coloredHandler) WithGroup(name string) slog.Handler {
	return &coloredHandler{inner: h.inner.WithGroup(name), out: h.out}
}

// multiHandler fans a record out to several handlers, used when both a
// rotated file and stderr are active so each can use its own format
// (plain JSON for the file, optionally colorized text for stderr).
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}
