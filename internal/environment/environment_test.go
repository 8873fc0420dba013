package environment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
)

func TestConfigureInstallsRCFilesWhenZshPresent(t *testing.T) {
	ctx := context.Background()
	fm := pane.NewFakeManager()
	require.NoError(t, fm.Create(ctx, "alpha_session", ""))
	// Seed the session so the "which zsh" check sees a usable path.
	fm.Feed("alpha_session", "/usr/bin/zsh")

	mgr := New(fm)
	warnings, err := mgr.Configure(ctx, "alpha_session", true)
	require.NoError(t, err)
	// Every copy step issues its own `ls` verification against the fake,
	// whose Capture echoes back whatever was sent — so each rc filename
	// should appear somewhere in the session transcript.
	out, capErr := fm.Capture(ctx, "alpha_session", 1000)
	require.NoError(t, capErr)
	require.Contains(t, out, ".zshrc")
	require.Contains(t, out, ".p10k.zsh")
	require.Contains(t, out, ".zsh_history")
	_ = warnings
}

func TestConfigureFallsBackToBashWithoutAutoConfigure(t *testing.T) {
	ctx := context.Background()
	fm := pane.NewFakeManager()
	require.NoError(t, fm.Create(ctx, "beta_session", ""))

	mgr := New(fm)
	warnings, err := mgr.Configure(ctx, "beta_session", false)
	require.NoError(t, err)
	require.NotEmpty(t, warnings, "expected a warning when zsh is absent and auto-configure is disabled")
}

func TestLooksLikeFirstRunWizard(t *testing.T) {
	require.True(t, looksLikeFirstRunWizard("Powerlevel10k configuration wizard"))
	require.False(t, looksLikeFirstRunWizard("user@host:~$ "))
}
