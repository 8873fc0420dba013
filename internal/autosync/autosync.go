// Package autosync implements the Auto-Sync Manager (spec §4.E): deploy an
// embedded FTP server into a container and emit a matching local SFTP
// client config so a local editor can treat remote files as local. Every
// step here is best-effort; failure downgrades to a warning, it never
// fails the parent connect_server call as long as the shell itself is
// live.
package autosync

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
)

var syncLog = logging.ForComponent(logging.CompAutosync)

//go:embed assets/ftp-server.tar.gz
var ftpServerBundle []byte

// bundleRemotePath is where the tarball lands inside the container before
// extraction; arbitrary but fixed so repeated deploys are idempotent.
const bundleRemotePath = "/tmp/remote-terminal-ftp-bundle.tar.gz"

// Manager deploys the auto-sync workflow against a pane already at a
// usable shell prompt inside the target container.
type Manager struct {
	panes pane.Manager
}

// New builds a Manager driving the given pane manager.
func New(panes pane.Manager) *Manager {
	return &Manager{panes: panes}
}

// Deploy runs the full sequence: transfer bundle, extract, start, write
// local sftp.json. Returns a warning string (empty if everything
// succeeded); deploy failures are never returned as an error, per spec.
func (m *Manager) Deploy(ctx context.Context, sessionName string, sc config.SyncConfig) string {
	if err := pane.WriteFile(ctx, m.panes, sessionName, bundleRemotePath, ftpServerBundle); err != nil {
		return fmt.Sprintf("failed to transfer sync bundle: %v", err)
	}

	remoteWorkspace := sc.RemoteWorkspace
	if remoteWorkspace == "" {
		remoteWorkspace = "/root/sync"
	}
	extractCmd := fmt.Sprintf("mkdir -p %s && tar xzf %s -C %s", remoteWorkspace, bundleRemotePath, remoteWorkspace)
	if err := m.panes.SendKeys(ctx, sessionName, extractCmd, true); err != nil {
		return fmt.Sprintf("failed to extract sync bundle: %v", err)
	}
	time.Sleep(500 * time.Millisecond)

	startCmd := fmt.Sprintf("cd %s && FTP_PORT=%d ./init.sh && FTP_PORT=%d ./start.sh &", remoteWorkspace, sc.FTPPort, sc.FTPPort)
	if err := m.panes.SendKeys(ctx, sessionName, startCmd, true); err != nil {
		return fmt.Sprintf("failed to start sync server: %v", err)
	}
	time.Sleep(1 * time.Second)

	if !m.probePort(ctx, sessionName, sc.FTPPort) {
		return fmt.Sprintf("sync server did not confirm readiness on port %d", sc.FTPPort)
	}

	if err := writeSFTPClientConfig(sc); err != nil {
		return fmt.Sprintf("sync server started but failed to write local sftp.json: %v", err)
	}

	syncLog.Info("autosync_deployed", "session", sessionName, "port", sc.FTPPort)
	return ""
}

// probePort checks the bundled server is listening, driven entirely
// through the pane (the core has no separate network client for this).
// The markers are split by quotes so the echoed command line itself never
// contains SYNC_PORT_OPEN; only the command's output can.
func (m *Manager) probePort(ctx context.Context, sessionName string, port int) bool {
	probeCmd := fmt.Sprintf("(echo > /dev/tcp/127.0.0.1/%d) 2>/dev/null && echo SYNC_PORT_\"OPEN\" || echo SYNC_PORT_\"CLOSED\"", port)
	if err := m.panes.SendKeys(ctx, sessionName, probeCmd, true); err != nil {
		return false
	}
	time.Sleep(500 * time.Millisecond)
	tail, err := m.panes.Capture(ctx, sessionName, 10)
	if err != nil {
		return false
	}
	return strings.Contains(tail, "SYNC_PORT_OPEN")
}

// sftpClientConfig is the sibling <local_workspace>/.vscode/sftp.json blob.
type sftpClientConfig struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Username     string   `json:"username"`
	Password     string   `json:"password"`
	RemotePath   string   `json:"remotePath"`
	UploadOnSave bool     `json:"uploadOnSave"`
	Ignore       []string `json:"ignore"`
}

func writeSFTPClientConfig(sc config.SyncConfig) error {
	if sc.LocalWorkspace == "" {
		return fmt.Errorf("sync.local_workspace is not set")
	}

	blob := sftpClientConfig{
		Host:         "localhost",
		Port:         sc.FTPPort,
		Username:     sc.FTPUser,
		Password:     sc.FTPPassword,
		RemotePath:   sc.RemoteWorkspace,
		UploadOnSave: true,
		Ignore:       sc.ExcludePatterns,
	}

	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling sftp.json: %w", err)
	}

	dir := filepath.Join(sc.LocalWorkspace, ".vscode")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	path := filepath.Join(dir, "sftp.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
