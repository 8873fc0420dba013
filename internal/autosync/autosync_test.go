package autosync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
)

// portOpeningFake is a FakeManager whose Capture always reports the probe
// as open, simulating a container where the bundled server came up.
type portOpeningFake struct {
	*pane.FakeManager
}

func newPortOpeningFake() *portOpeningFake {
	return &portOpeningFake{FakeManager: pane.NewFakeManager()}
}

func (p *portOpeningFake) Capture(ctx context.Context, name string, tailLines int) (string, error) {
	out, err := p.FakeManager.Capture(ctx, name, tailLines)
	if err != nil {
		return "", err
	}
	return out + "\nSYNC_PORT_OPEN", nil
}

func TestDeploySucceedsAndWritesLocalSFTPConfig(t *testing.T) {
	ctx := context.Background()
	fm := newPortOpeningFake()
	require.NoError(t, fm.Create(ctx, "alpha_session", ""))

	localDir := t.TempDir()
	sc := config.SyncConfig{
		Enabled:         true,
		RemoteWorkspace: "/root/sync",
		LocalWorkspace:  localDir,
		FTPPort:         2121,
		FTPUser:         "syncuser",
		FTPPassword:     "hunter2",
		ExcludePatterns: []string{"node_modules", ".git"},
	}

	mgr := New(fm)
	warning := mgr.Deploy(ctx, "alpha_session", sc)
	require.Empty(t, warning)

	data, err := os.ReadFile(filepath.Join(localDir, ".vscode", "sftp.json"))
	require.NoError(t, err)
	require.Contains(t, string(data), "\"port\": 2121")
	require.Contains(t, string(data), "syncuser")
}

func TestDeployDowngradesToWarningWhenPortNeverOpens(t *testing.T) {
	ctx := context.Background()
	fm := pane.NewFakeManager()
	require.NoError(t, fm.Create(ctx, "beta_session", ""))

	sc := config.SyncConfig{
		Enabled:         true,
		LocalWorkspace:  t.TempDir(),
		RemoteWorkspace: "/root/sync",
		FTPPort:         2121,
	}

	mgr := New(fm)
	warning := mgr.Deploy(ctx, "beta_session", sc)
	require.NotEmpty(t, warning)
}

func TestDeployFailsWithoutLocalWorkspace(t *testing.T) {
	ctx := context.Background()
	fm := newPortOpeningFake()
	require.NoError(t, fm.Create(ctx, "gamma_session", ""))

	sc := config.SyncConfig{
		Enabled:         true,
		RemoteWorkspace: "/root/sync",
		FTPPort:         2121,
	}

	mgr := New(fm)
	warning := mgr.Deploy(ctx, "gamma_session", sc)
	require.Contains(t, warning, "local_workspace")
}
