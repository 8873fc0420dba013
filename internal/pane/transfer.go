package pane

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"
)

// chunkSize bounds how much base64 text is sent per send_keys call; tmux
// and the remote shell both have practical line-length limits, so large
// payloads are written in several `cat >> file` chunks rather than one.
const chunkSize = 4000

// WriteFile transfers content into the session by base64-encoding it and
// piping chunks through `cat >> targetPath` via send_keys — a transfer
// method that depends on nothing but a working shell, with no outbound
// network access required from the remote side. This is the canonical
// choice spec.md names for the Auto-Sync Manager's tarball transfer, and
// the Environment Manager reuses it for rc-file copies.
func WriteFile(ctx context.Context, m Manager, sessionName string, targetPath string, content []byte) error {
	if err := m.SendKeys(ctx, sessionName, fmt.Sprintf("rm -f %s.b64", targetPath), true); err != nil {
		return fmt.Errorf("clearing staging file: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(content)
	for i := 0; i < len(encoded); i += chunkSize {
		end := i + chunkSize
		if end > len(encoded) {
			end = len(encoded)
		}
		chunk := encoded[i:end]
		cmd := fmt.Sprintf("cat >> %s.b64 << 'REMOTE_TERMINAL_MCP_EOF'\n%s\nREMOTE_TERMINAL_MCP_EOF", targetPath, chunk)
		if err := m.SendKeys(ctx, sessionName, cmd, true); err != nil {
			return fmt.Errorf("sending chunk %d: %w", i/chunkSize, err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	decodeCmd := fmt.Sprintf("base64 -d %s.b64 > %s && rm -f %s.b64", targetPath, targetPath, targetPath)
	if err := m.SendKeys(ctx, sessionName, decodeCmd, true); err != nil {
		return fmt.Errorf("decoding staged file: %w", err)
	}
	return nil
}
