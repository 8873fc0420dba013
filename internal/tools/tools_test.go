package tools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/history"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/orchestrator"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/wizard"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *config.Store, *pane.FakeManager) {
	t.Helper()
	store := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	fm := pane.NewFakeManager()
	orch := orchestrator.New(fm, nil, nil)
	wiz := wizard.New(func() int64 { return 1700000000000 })
	ledger, err := history.Open("")
	require.NoError(t, err)
	return New(store, fm, orch, wiz, ledger), store, fm
}

func TestListServersReturnsEmptyArrayWhenNoneRegistered(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	res := d.Call(context.Background(), "list_servers", nil)
	require.False(t, res.IsError)
	require.Equal(t, "[]", res.Content[0].Text)
}

func TestGetServerInfoRedactsPassword(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	require.NoError(t, store.Save(map[string]*config.ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", Port: 22, ConnectionType: "ssh", Password: "secret123"},
	}, true))

	args, _ := json.Marshal(map[string]string{"name": "alpha"})
	res := d.Call(context.Background(), "get_server_info", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content[0].Text, "***")
	require.NotContains(t, res.Content[0].Text, "secret123")
}

func TestGetServerInfoMissingServer(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	args, _ := json.Marshal(map[string]string{"name": "ghost"})
	res := d.Call(context.Background(), "get_server_info", args)
	require.True(t, res.IsError)
}

func TestGetServerStatusReportsAbsentSession(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	require.NoError(t, store.Save(map[string]*config.ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", ConnectionType: "ssh"},
	}, true))

	args, _ := json.Marshal(map[string]string{"name": "alpha"})
	res := d.Call(context.Background(), "get_server_status", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content[0].Text, "\"exists\": false")
}

func TestDisconnectServerIsIdempotent(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	args, _ := json.Marshal(map[string]string{"name": "ghost"})
	res1 := d.Call(context.Background(), "disconnect_server", args)
	require.False(t, res1.IsError)
	res2 := d.Call(context.Background(), "disconnect_server", args)
	require.False(t, res2.IsError)
}

func TestCreateServerConfigDirectMode(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	args, _ := json.Marshal(map[string]interface{}{
		"name": "direct-box", "host": "10.0.0.5", "username": "ops",
		"connection_type": "ssh", "interactive": false,
	})
	res := d.Call(context.Background(), "create_server_config", args)
	require.False(t, res.IsError)

	sc, ok, err := store.Get("direct-box")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", sc.Host)
}

func TestCreateServerConfigWizardModeRendersFirstPrompt(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	args, _ := json.Marshal(map[string]interface{}{"interactive": true, "cursor_interactive": true})
	res := d.Call(context.Background(), "create_server_config", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content[0].Text, "continue_config_session")
}

func TestDeleteServerConfigIdempotent(t *testing.T) {
	d, store, _ := newTestDispatcher(t)
	require.NoError(t, store.Save(map[string]*config.ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", ConnectionType: "ssh"},
	}, true))

	args, _ := json.Marshal(map[string]string{"name": "alpha"})
	res1 := d.Call(context.Background(), "delete_server_config", args)
	require.False(t, res1.IsError)
	res2 := d.Call(context.Background(), "delete_server_config", args)
	require.False(t, res2.IsError)

	_, ok, err := store.Get("alpha")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunLocalCommandCapturesOutputAndExit(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	args, _ := json.Marshal(map[string]string{"command": "echo hello"})
	res := d.Call(context.Background(), "run_local_command", args)
	require.False(t, res.IsError)
	require.Contains(t, res.Content[0].Text, "hello")
	require.Contains(t, res.Content[0].Text, "\"exit_code\": 0")
}

func TestGetConnectionHistoryEmptyWhenLedgerDisabled(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	args, _ := json.Marshal(map[string]string{"name": "alpha"})
	res := d.Call(context.Background(), "get_connection_history", args)
	require.False(t, res.IsError)
	require.Equal(t, "null", res.Content[0].Text)
}

func TestUnknownToolReturnsError(t *testing.T) {
	d, _, _ := newTestDispatcher(t)
	res := d.Call(context.Background(), "not_a_real_tool", nil)
	require.True(t, res.IsError)
}

func TestConnectServerRecordsHistoryOnSuccessWhenLedgerEnabled(t *testing.T) {
	store := config.NewStore(filepath.Join(t.TempDir(), "config.yaml"))
	require.NoError(t, store.Save(map[string]*config.ServerConfig{
		"alpha": {Host: "10.0.0.1", Username: "bob", ConnectionType: "ssh"},
	}, true))

	fm := &shellReadyFakeForTools{FakeManager: pane.NewFakeManager()}
	orch := orchestrator.New(fm, nil, nil)
	wiz := wizard.New(func() int64 { return 1700000000000 })
	ledger, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer ledger.Close()

	d := New(store, fm, orch, wiz, ledger)
	args, _ := json.Marshal(map[string]string{"name": "alpha"})
	res := d.Call(context.Background(), "connect_server", args)
	require.False(t, res.IsError)

	entries, err := ledger.RecentHistory("alpha", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, history.OutcomeSuccess, entries[0].Outcome)
}

type shellReadyFakeForTools struct {
	*pane.FakeManager
}

func (s *shellReadyFakeForTools) Capture(ctx context.Context, name string, tailLines int) (string, error) {
	out, err := s.FakeManager.Capture(ctx, name, tailLines)
	if err != nil {
		return "", err
	}
	return out + "\nuser@host:~$ ", nil
}
