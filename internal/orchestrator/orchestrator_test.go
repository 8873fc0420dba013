package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
)

// shellReadyFake reports a plain shell prompt on every capture, so SSH
// connects resolve immediately without a real remote host.
type shellReadyFake struct {
	*pane.FakeManager
}

func newShellReadyFake() *shellReadyFake {
	return &shellReadyFake{FakeManager: pane.NewFakeManager()}
}

func (s *shellReadyFake) Capture(ctx context.Context, name string, tailLines int) (string, error) {
	out, err := s.FakeManager.Capture(ctx, name, tailLines)
	if err != nil {
		return "", err
	}
	return out + "\nuser@host:~$ ", nil
}

func TestConnectDirectSSHSucceeds(t *testing.T) {
	ctx := context.Background()
	fm := newShellReadyFake()

	sc := config.ServerConfig{
		Name:           "alpha",
		Host:           "198.51.100.2",
		Username:       "deploy",
		Port:           22,
		ConnectionType: "ssh",
	}

	orch := New(fm, nil, nil)
	result := orch.Connect(ctx, sc)
	require.True(t, result.Success)
	require.Equal(t, "alpha_session", result.SessionName)
	require.Empty(t, result.Error)
}

func TestConnectUnsupportedConnectionType(t *testing.T) {
	ctx := context.Background()
	fm := newShellReadyFake()

	sc := config.ServerConfig{
		Name:           "beta",
		Host:           "198.51.100.2",
		Username:       "deploy",
		ConnectionType: "telnet",
	}

	orch := New(fm, nil, nil)
	result := orch.Connect(ctx, sc)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "unsupported connection_type")
}

func TestConnectFatalPhraseFailsFast(t *testing.T) {
	ctx := context.Background()
	fm := pane.NewFakeManager()
	// The fake appends a fatal phrase to every capture, so the wait for a
	// shell prompt sees "Permission denied" and the connect fails.
	sessionName := "gamma_session"

	sc := config.ServerConfig{
		Name:           "gamma",
		Host:           "198.51.100.2",
		Username:       "deploy",
		ConnectionType: "ssh",
	}

	fatalFake := &fatalAfterConnectFake{FakeManager: fm, sessionName: sessionName}
	orch := New(fatalFake, nil, nil)
	result := orch.Connect(ctx, sc)
	require.False(t, result.Success)
	require.Contains(t, result.Error, "Permission denied")
}

type fatalAfterConnectFake struct {
	*pane.FakeManager
	sessionName string
}

func (f *fatalAfterConnectFake) Capture(ctx context.Context, name string, tailLines int) (string, error) {
	out, err := f.FakeManager.Capture(ctx, name, tailLines)
	if err != nil {
		return "", err
	}
	return out + "\nPermission denied (publickey).", nil
}

func TestDisconnectIsIdempotent(t *testing.T) {
	ctx := context.Background()
	fm := pane.NewFakeManager()
	sc := config.ServerConfig{Name: "delta"}

	orch := New(fm, nil, nil)
	require.NoError(t, orch.Disconnect(ctx, sc))
	require.NoError(t, orch.Disconnect(ctx, sc))
}
