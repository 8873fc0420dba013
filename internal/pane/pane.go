// Package pane implements the Pane Manager Adapter: a thin wrapper over an
// external terminal multiplexer (tmux) exposing exactly the six operations
// the orchestrator needs. The core never assumes any capability beyond
// these six, and never assumes a session it did not just create is in any
// particular state.
package pane

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
)

var paneLog = logging.ForComponent(logging.CompPane)

// Manager is the interface the rest of the core depends on. A tmux-backed
// implementation is provided below; tests use an in-memory fake.
type Manager interface {
	Exists(ctx context.Context, sessionName string) (bool, error)
	Create(ctx context.Context, sessionName string, initialCommand string) error
	Kill(ctx context.Context, sessionName string) error
	SendKeys(ctx context.Context, sessionName string, text string, pressEnter bool) error
	Capture(ctx context.Context, sessionName string, tailLines int) (string, error)
	List(ctx context.Context) ([]string, error)
}

// TmuxManager drives a real tmux binary.
type TmuxManager struct {
	captureSf singleflight.Group
	existsSf  singleflight.Group
}

// NewTmuxManager constructs a tmux-backed Manager.
func NewTmuxManager() *TmuxManager {
	return &TmuxManager{}
}

// IsAvailable reports whether the tmux binary is reachable on PATH.
func IsAvailable() error {
	if _, err := exec.LookPath("tmux"); err != nil {
		return fmt.Errorf("tmux not found on PATH: %w", err)
	}
	return nil
}

// Exists reports whether a session by this name currently exists.
func (m *TmuxManager) Exists(ctx context.Context, sessionName string) (bool, error) {
	v, err, _ := m.existsSf.Do(sessionName, func() (interface{}, error) {
		cmd := exec.CommandContext(ctx, "tmux", "has-session", "-t", sessionName)
		return cmd.Run() == nil, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// Create starts a detached session and, if initialCommand is non-empty,
// sends it as the first line of input.
func (m *TmuxManager) Create(ctx context.Context, sessionName string, initialCommand string) error {
	cmd := exec.CommandContext(ctx, "tmux", "new-session", "-d", "-s", sessionName)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("creating tmux session %s: %w (output: %s)", sessionName, err, strings.TrimSpace(string(out)))
	}

	// A generous scrollback keeps the readiness detector's tail window
	// meaningful even across a chatty connection sequence.
	_ = exec.CommandContext(ctx, "tmux",
		"set-option", "-t", sessionName, "history-limit", "10000", ";",
		"set-option", "-t", sessionName, "escape-time", "10").Run()

	if initialCommand == "" {
		return nil
	}
	return m.SendKeys(ctx, sessionName, initialCommand, true)
}

// Kill terminates the session. Idempotent: killing an absent session is
// not an error, matching tmux's own best-effort kill-session semantics
// combined with an Exists pre-check.
func (m *TmuxManager) Kill(ctx context.Context, sessionName string) error {
	exists, err := m.Exists(ctx, sessionName)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	cmd := exec.CommandContext(ctx, "tmux", "kill-session", "-t", sessionName)
	if err := cmd.Run(); err != nil {
		paneLog.Warn("kill_session_failed", "session", sessionName, "error", err.Error())
		return fmt.Errorf("killing tmux session %s: %w", sessionName, err)
	}
	return nil
}

// SendKeys types text into the pane, optionally followed by Enter.
func (m *TmuxManager) SendKeys(ctx context.Context, sessionName string, text string, pressEnter bool) error {
	args := []string{"send-keys", "-t", sessionName, text}
	if pressEnter {
		args = append(args, "Enter")
	}
	cmd := exec.CommandContext(ctx, "tmux", args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sending keys to %s: %w (output: %s)", sessionName, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Capture returns the last tailLines of the pane's visible buffer. Calls
// for the same session within the same tick are collapsed through
// singleflight, the way the teacher's tmux package avoids redundant
// subprocess spawns under bursty polling.
func (m *TmuxManager) Capture(ctx context.Context, sessionName string, tailLines int) (string, error) {
	if tailLines <= 0 {
		tailLines = 40
	}
	key := fmt.Sprintf("%s:%d", sessionName, tailLines)
	v, err, _ := m.captureSf.Do(key, func() (interface{}, error) {
		captureCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		cmd := exec.CommandContext(captureCtx, "tmux", "capture-pane", "-t", sessionName, "-p", "-J")
		out, err := cmd.Output()
		if err != nil {
			if captureCtx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("capturing pane %s: timed out", sessionName)
			}
			return "", fmt.Errorf("capturing pane %s: %w", sessionName, err)
		}
		return tail(string(out), tailLines), nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// List returns every known tmux session name.
func (m *TmuxManager) List(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, "tmux", "list-sessions", "-F", "#{session_name}")
	out, err := cmd.Output()
	if err != nil {
		// tmux exits non-zero with "no server running" when there are no
		// sessions at all; treat that as an empty list, not an error.
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 && strings.Contains(string(exitErr.Stderr), "no server running") {
			return nil, nil
		}
		return nil, fmt.Errorf("listing tmux sessions: %w", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	names := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			names = append(names, l)
		}
	}
	return names, nil
}

func tail(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

// SessionNameFor derives the orchestrator's naming convention:
// "<server-name>_session".
func SessionNameFor(serverName string) string {
	return serverName + "_session"
}

// FakeManager is an in-memory Manager for unit tests that never shell out.
type FakeManager struct {
	mu       sync.Mutex
	sessions map[string]*fakeSession
}

type fakeSession struct {
	buffer []string
}

// NewFakeManager constructs an empty FakeManager.
func NewFakeManager() *FakeManager {
	return &FakeManager{sessions: map[string]*fakeSession{}}
}

func (f *FakeManager) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.sessions[name]
	return ok, nil
}

func (f *FakeManager) Create(ctx context.Context, name string, initialCommand string) error {
	f.mu.Lock()
	f.sessions[name] = &fakeSession{}
	f.mu.Unlock()
	if initialCommand != "" {
		return f.SendKeys(ctx, name, initialCommand, true)
	}
	return nil
}

func (f *FakeManager) Kill(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, name)
	return nil
}

func (f *FakeManager) SendKeys(_ context.Context, name string, text string, pressEnter bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		return fmt.Errorf("no such session: %s", name)
	}
	s.buffer = append(s.buffer, text)
	return nil
}

func (f *FakeManager) Capture(_ context.Context, name string, tailLines int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		return "", fmt.Errorf("no such session: %s", name)
	}
	lines := s.buffer
	if tailLines > 0 && len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return strings.Join(lines, "\n"), nil
}

func (f *FakeManager) List(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.sessions))
	for n := range f.sessions {
		names = append(names, n)
	}
	return names, nil
}

// Feed appends a line directly to a fake session's buffer, used by tests
// that simulate remote output without going through SendKeys.
func (f *FakeManager) Feed(name string, line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[name]
	if !ok {
		s = &fakeSession{}
		f.sessions[name] = s
	}
	s.buffer = append(s.buffer, line)
}
