// Package environment implements the Environment Manager (spec §4.D):
// given a container pane already at a bash prompt, land the user in their
// preferred shell with their rc files copied in. Every step here is
// best-effort — failures downgrade to warnings, they never abort the
// parent Connection Orchestrator.
package environment

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
)

var envLog = logging.ForComponent(logging.CompEnvironment)

//go:embed assets/zshrc
var zshrcTemplate []byte

//go:embed assets/p10k.zsh
var p10kTemplate []byte

//go:embed assets/zsh_history
var zshHistoryTemplate []byte

var rcFiles = []struct {
	remoteName string
	content    []byte
}{
	{".zshrc", zshrcTemplate},
	{".p10k.zsh", p10kTemplate},
	{".zsh_history", zshHistoryTemplate},
}

// Manager configures a preferred shell inside a container pane.
type Manager struct {
	panes pane.Manager
}

// New builds a Manager driving the given pane manager.
func New(panes pane.Manager) *Manager {
	return &Manager{panes: panes}
}

// Configure runs the shell-setup sequence against sessionName, which must
// already be at a bash prompt inside the target container. Returns warning
// strings for any best-effort step that failed; a non-nil error is
// returned only for conditions severe enough that the caller cannot trust
// the session is usable at all (which, per spec, should not normally
// happen — every documented failure here downgrades to a warning).
func (m *Manager) Configure(ctx context.Context, sessionName string, autoConfigureShell bool) (warnings []string, err error) {
	if ok, werr := m.ensureZshInstalled(ctx, sessionName, autoConfigureShell); !ok {
		warnings = append(warnings, werr.Error())
		return warnings, nil // fall back to bash; not fatal
	}

	for _, rc := range rcFiles {
		if w := m.installRCFile(ctx, sessionName, rc.remoteName, rc.content); w != "" {
			warnings = append(warnings, w)
		}
	}

	if err := m.panes.SendKeys(ctx, sessionName, "exec zsh", true); err != nil {
		warnings = append(warnings, fmt.Sprintf("failed to exec zsh: %v", err))
		return warnings, nil
	}

	// Give the shell a moment to print its first prompt / theme wizard
	// before we look for one, mirroring the orchestrator's own
	// poll-then-inspect discipline rather than reading immediately.
	time.Sleep(500 * time.Millisecond)
	tail, capErr := m.panes.Capture(ctx, sessionName, 40)
	if capErr == nil && looksLikeFirstRunWizard(tail) {
		if err := m.panes.SendKeys(ctx, sessionName, "q", false); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to dismiss theme wizard: %v", err))
		}
	}

	return warnings, nil
}

func (m *Manager) ensureZshInstalled(ctx context.Context, sessionName string, autoConfigure bool) (bool, error) {
	if err := m.panes.SendKeys(ctx, sessionName, "which zsh", true); err != nil {
		return false, fmt.Errorf("checking for zsh: %w", err)
	}
	time.Sleep(300 * time.Millisecond)
	tail, err := m.panes.Capture(ctx, sessionName, 10)
	if err != nil {
		return false, fmt.Errorf("capturing zsh check: %w", err)
	}
	if strings.Contains(tail, "/zsh") {
		return true, nil
	}
	if !autoConfigure {
		return false, fmt.Errorf("zsh not found and auto_configure_shell is disabled; staying on bash")
	}

	envLog.Info("installing_zsh", "session", sessionName)
	installCmd := "apt-get install -y zsh || yum install -y zsh"
	if err := m.panes.SendKeys(ctx, sessionName, installCmd, true); err != nil {
		return false, fmt.Errorf("sending zsh install command: %w", err)
	}
	time.Sleep(5 * time.Second)
	tail, err = m.panes.Capture(ctx, sessionName, 10)
	if err != nil || !strings.Contains(tail, "/zsh") {
		// Best effort: re-check with `which` directly in case the install
		// output scrolled out of the tail window.
		_ = m.panes.SendKeys(ctx, sessionName, "which zsh", true)
		time.Sleep(300 * time.Millisecond)
		tail, err = m.panes.Capture(ctx, sessionName, 10)
		if err != nil || !strings.Contains(tail, "/zsh") {
			return false, fmt.Errorf("zsh installation failed or could not be verified; staying on bash")
		}
	}
	return true, nil
}

// installRCFile removes any stale target (preventing a copy tool's
// silent rename-on-collision behavior), writes the template content via
// a base64-chunked heredoc sent through send_keys, and verifies the file
// landed with the exact expected name.
func (m *Manager) installRCFile(ctx context.Context, sessionName, remoteName string, content []byte) string {
	targetPath := "/root/" + remoteName

	if err := m.panes.SendKeys(ctx, sessionName, fmt.Sprintf("rm -f %s", targetPath), true); err != nil {
		return fmt.Sprintf("failed to clear %s before copy: %v", remoteName, err)
	}

	if err := pane.WriteFile(ctx, m.panes, sessionName, targetPath, content); err != nil {
		return fmt.Sprintf("failed to copy %s: %v", remoteName, err)
	}

	time.Sleep(200 * time.Millisecond)
	if err := m.panes.SendKeys(ctx, sessionName, fmt.Sprintf("ls %s", targetPath), true); err != nil {
		return fmt.Sprintf("failed to verify %s: %v", remoteName, err)
	}
	time.Sleep(200 * time.Millisecond)
	tail, err := m.panes.Capture(ctx, sessionName, 5)
	if err != nil || !strings.Contains(tail, remoteName) || strings.Contains(tail, "No such file") {
		return fmt.Sprintf("could not verify %s exists after copy", remoteName)
	}
	return ""
}

func looksLikeFirstRunWizard(tail string) bool {
	lower := strings.ToLower(tail)
	return strings.Contains(lower, "configuration wizard") || strings.Contains(lower, "powerlevel10k configuration")
}
