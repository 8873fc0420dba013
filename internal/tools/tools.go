// Package tools implements the Tool Dispatcher (spec §4.H plus the
// SPEC_FULL.md §4.J addition): the full MCP tool catalog, its input
// schemas, argument validation, and routing into the Config Store,
// Connection Orchestrator, Config Session Registry, and Session History
// Ledger. Every tool's schema-validation failure returns a text result,
// never a JSON-RPC error — only transport-level faults use that channel.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/creack/pty"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/history"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/orchestrator"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/wizard"
)

var toolsLog = logging.ForComponent(logging.CompTools)

// Tool describes one MCP tool: its name, schema, and handler.
type Tool struct {
	Name        string
	Description string
	InputSchema map[string]interface{}
}

// CallResult is what tools/call returns — always a text block, per the
// MCP text-content convention the teacher's tool-response shapes follow.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// ContentBlock is one piece of a CallResult.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) CallResult {
	return CallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(text string) CallResult {
	return CallResult{Content: []ContentBlock{{Type: "text", Text: text}}, IsError: true}
}

// Dispatcher wires every dependency the tool catalog needs.
type Dispatcher struct {
	store   *config.Store
	panes   pane.Manager
	orch    *orchestrator.Orchestrator
	wiz     *wizard.Registry
	ledger  history.Ledger
	nowFunc func() time.Time
}

// New builds a Dispatcher whose clock (nowFunc) is time.Now.
func New(store *config.Store, panes pane.Manager, orch *orchestrator.Orchestrator, wiz *wizard.Registry, ledger history.Ledger) *Dispatcher {
	return &Dispatcher{store: store, panes: panes, orch: orch, wiz: wiz, ledger: ledger, nowFunc: time.Now}
}

// Catalog returns the static tool list for tools/list.
func (d *Dispatcher) Catalog() []Tool {
	return catalog
}

var catalog = []Tool{
	{
		Name:        "list_servers",
		Description: "List every registered server with a short summary.",
		InputSchema: schema(nil, nil),
	},
	{
		Name:        "get_server_info",
		Description: "Return the full config record for one server, with secrets redacted.",
		InputSchema: schema(props{"name": str()}, []string{"name"}),
	},
	{
		Name:        "get_server_status",
		Description: "Report whether a server's pane session exists and its last output tail.",
		InputSchema: schema(props{"name": str()}, []string{"name"}),
	},
	{
		Name:        "connect_server",
		Description: "Establish (or re-establish) a connection to a server via the Connection Orchestrator.",
		InputSchema: schema(props{"name": str(), "force_recreate": boolProp()}, []string{"name"}),
	},
	{
		Name:        "disconnect_server",
		Description: "Kill a server's pane session. Idempotent.",
		InputSchema: schema(props{"name": str()}, []string{"name"}),
	},
	{
		Name:        "execute_command",
		Description: "Send a command to a server's pane and return newly captured output.",
		InputSchema: schema(props{"name": str(), "command": str(), "timeout_sec": numberProp()}, []string{"name", "command"}),
	},
	{
		Name:        "run_local_command",
		Description: "Run a command in a separate local process (not the pane) and return stdout/stderr/exit code.",
		InputSchema: schema(props{"command": str(), "timeout_sec": numberProp(), "pty": boolProp()}, []string{"command"}),
	},
	{
		Name:        "create_server_config",
		Description: "Create a new server config, either directly or via the in-chat configuration wizard.",
		InputSchema: schema(props{
			"name": str(), "host": str(), "username": str(), "port": numberProp(),
			"connection_type": str(), "cursor_interactive": boolProp(), "interactive": boolProp(),
		}, nil),
	},
	{
		Name:        "continue_config_session",
		Description: "Supply one field's value to an in-flight configuration wizard session.",
		InputSchema: schema(props{"session_id": str(), "field_name": str(), "field_value": str()}, []string{"session_id", "field_name", "field_value"}),
	},
	{
		Name:        "update_server_config",
		Description: "Merge-update an existing server's config.",
		InputSchema: schema(props{"name": str()}, []string{"name"}),
	},
	{
		Name:        "delete_server_config",
		Description: "Remove a server config. Idempotent.",
		InputSchema: schema(props{"name": str()}, []string{"name"}),
	},
	{
		Name:        "diagnose_connection",
		Description: "Best-effort diagnosis of a server's connection state: pane state plus a local host-reachability probe.",
		InputSchema: schema(props{"name": str()}, []string{"name"}),
	},
	{
		Name:        "get_connection_history",
		Description: "Return the most recent history-ledger entries for a server, newest first.",
		InputSchema: schema(props{"name": str(), "limit": numberProp()}, []string{"name"}),
	},
}

type props map[string]interface{}

func schema(properties props, required []string) map[string]interface{} {
	s := map[string]interface{}{"type": "object"}
	if properties != nil {
		s["properties"] = properties
	} else {
		s["properties"] = props{}
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str() map[string]interface{}       { return map[string]interface{}{"type": "string"} }
func numberProp() map[string]interface{} { return map[string]interface{}{"type": "number"} }
func boolProp() map[string]interface{}   { return map[string]interface{}{"type": "boolean"} }

// Call dispatches one tools/call invocation by name. A panic inside a
// handler is recovered here and returned as an "internal error: …" result.
func (d *Dispatcher) Call(ctx context.Context, name string, rawArgs json.RawMessage) (result CallResult) {
	defer func() {
		if r := recover(); r != nil {
			toolsLog.Error("tool_panic", "tool", name, "panic", fmt.Sprint(r))
			result = errorResult(fmt.Sprintf("internal error: %v", r))
		}
	}()

	args := map[string]interface{}{}
	if len(rawArgs) > 0 {
		if err := json.Unmarshal(rawArgs, &args); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}

	switch name {
	case "list_servers":
		return d.listServers(ctx)
	case "get_server_info":
		return d.getServerInfo(ctx, args)
	case "get_server_status":
		return d.getServerStatus(ctx, args)
	case "connect_server":
		return d.connectServer(ctx, args)
	case "disconnect_server":
		return d.disconnectServer(ctx, args)
	case "execute_command":
		return d.executeCommand(ctx, args)
	case "run_local_command":
		return d.runLocalCommand(ctx, args)
	case "create_server_config":
		return d.createServerConfig(ctx, args)
	case "continue_config_session":
		return d.continueConfigSession(ctx, args)
	case "update_server_config":
		return d.updateServerConfig(ctx, args)
	case "delete_server_config":
		return d.deleteServerConfig(ctx, args)
	case "diagnose_connection":
		return d.diagnoseConnection(ctx, args)
	case "get_connection_history":
		return d.getConnectionHistory(ctx, args)
	default:
		return errorResult(fmt.Sprintf("unknown tool: %s", name))
	}
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required field %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", key)
	}
	return s, nil
}

func optionalBool(args map[string]interface{}, key string, def bool) bool {
	v, ok := args[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

func optionalInt(args map[string]interface{}, key string, def int) int {
	v, ok := args[key]
	if !ok {
		return def
	}
	f, ok := v.(float64)
	if !ok {
		return def
	}
	return int(f)
}

func (d *Dispatcher) listServers(ctx context.Context) CallResult {
	servers, err := d.store.List()
	if err != nil {
		return errorResult(fmt.Sprintf("failed to list servers: %v", err))
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Name < servers[j].Name })

	type summary struct {
		Name     string `json:"name"`
		Desc     string `json:"description"`
		Type     string `json:"type"`
		Host     string `json:"host"`
		Username string `json:"username"`
	}
	summaries := make([]summary, 0, len(servers))
	for _, s := range servers {
		summaries = append(summaries, summary{Name: s.Name, Desc: s.Description, Type: s.ConnectionType, Host: s.Host, Username: s.Username})
	}
	data, _ := json.MarshalIndent(summaries, "", "  ")
	return textResult(string(data))
}

func (d *Dispatcher) getServerInfo(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	sc, ok, err := d.store.Get(name)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load server %q: %v", name, err))
	}
	if !ok {
		return errorResult(fmt.Sprintf("no such server: %s", name))
	}
	data, _ := json.MarshalIndent(sc.Redacted(), "", "  ")
	return textResult(string(data))
}

func (d *Dispatcher) getServerStatus(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	sessionName := pane.SessionNameFor(name)
	exists, err := d.panes.Exists(ctx, sessionName)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to check session: %v", err))
	}
	tail := ""
	if exists {
		tail, _ = d.panes.Capture(ctx, sessionName, 40)
	}
	data, _ := json.MarshalIndent(map[string]interface{}{"exists": exists, "last_output_tail": tail}, "", "  ")
	return textResult(string(data))
}

func (d *Dispatcher) connectServer(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	sc, ok, err := d.store.Get(name)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load server %q: %v", name, err))
	}
	if !ok {
		return errorResult(fmt.Sprintf("no such server: %s", name))
	}

	started := d.nowFunc()
	result := d.orch.Connect(ctx, sc)
	finished := d.nowFunc()

	outcome := history.OutcomeSuccess
	detail := ""
	if !result.Success {
		outcome = history.OutcomeError
		detail = result.Error
	}
	d.recordHistory(name, history.ActionConnect, outcome, detail, started, finished)

	if !result.Success {
		return errorResult(fmt.Sprintf("connect_server failed: %s\n\n--- pane tail ---\n%s", result.Error, result.FinalTail))
	}

	text := fmt.Sprintf("Connected to %s (session %s).\n", name, result.SessionName)
	if len(result.Warnings) > 0 {
		text += "\nWarnings:\n"
		for _, w := range result.Warnings {
			text += "  - " + w + "\n"
		}
	}
	text += "\n--- pane tail ---\n" + result.FinalTail
	return textResult(text)
}

func (d *Dispatcher) disconnectServer(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	sc, ok, err := d.store.Get(name)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load server %q: %v", name, err))
	}
	if !ok {
		sc = config.ServerConfig{Name: name}
	}
	started := d.nowFunc()
	disconnectErr := d.orch.Disconnect(ctx, sc)
	finished := d.nowFunc()

	outcome := history.OutcomeSuccess
	detail := ""
	if disconnectErr != nil {
		outcome = history.OutcomeError
		detail = disconnectErr.Error()
	}
	d.recordHistory(name, history.ActionDisconnect, outcome, detail, started, finished)

	if disconnectErr != nil {
		return errorResult(fmt.Sprintf("failed to disconnect %s: %v", name, disconnectErr))
	}
	return textResult(fmt.Sprintf("Disconnected %s.", name))
}

func (d *Dispatcher) executeCommand(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	command, err := requireString(args, "command")
	if err != nil {
		return errorResult(err.Error())
	}
	timeoutSec := optionalInt(args, "timeout_sec", 10)

	sessionName := pane.SessionNameFor(name)
	before, _ := d.panes.Capture(ctx, sessionName, 200)

	if err := d.panes.SendKeys(ctx, sessionName, command, true); err != nil {
		return errorResult(fmt.Sprintf("failed to send command: %v", err))
	}

	deadline := time.Now().Add(time.Duration(timeoutSec) * time.Second)
	var after string
	for {
		after, err = d.panes.Capture(ctx, sessionName, 200)
		if err != nil {
			return errorResult(fmt.Sprintf("failed to capture pane: %v", err))
		}
		if after != before && (strings.HasSuffix(strings.TrimRight(after, "\n"), "$ ") || strings.HasSuffix(strings.TrimRight(after, "\n"), "# ")) {
			break
		}
		if time.Now().After(deadline) {
			return textResult(fmt.Sprintf("timed out after %ds waiting for command to complete; pane session left running.\n\n--- captured output so far ---\n%s", timeoutSec, after))
		}
		time.Sleep(200 * time.Millisecond)
	}

	newOutput := diffTail(before, after)
	return textResult(newOutput)
}

// diffTail returns the portion of after that extends beyond before,
// falling back to the full captured tail when before isn't a clean
// prefix (e.g. the pane's scrollback trimmed the shared portion away).
func diffTail(before, after string) string {
	if strings.HasPrefix(after, before) {
		return strings.TrimPrefix(after, before)
	}
	return after
}

func (d *Dispatcher) runLocalCommand(ctx context.Context, args map[string]interface{}) CallResult {
	command, err := requireString(args, "command")
	if err != nil {
		return errorResult(err.Error())
	}
	timeoutSec := optionalInt(args, "timeout_sec", 30)
	usePty := optionalBool(args, "pty", false)

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	if usePty {
		return d.runLocalCommandPty(runCtx, command)
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() == context.DeadlineExceeded {
			exitCode = -1
		} else {
			exitCode = -1
		}
	}

	data, _ := json.MarshalIndent(map[string]interface{}{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, "", "  ")
	return textResult(string(data))
}

// runLocalCommandPty runs command under a pseudo-terminal instead of a
// plain pipe. Some local tooling (password prompts, progress bars,
// anything checking isatty) behaves differently — or refuses to run at
// all — without one; this is the escape hatch for that case. Stdout and
// stderr are not separable once merged through a pty, so both land in
// the same combined field.
func (d *Dispatcher) runLocalCommandPty(ctx context.Context, command string) CallResult {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	f, err := pty.Start(cmd)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to start pty: %v", err))
	}
	defer f.Close()

	output, _ := io.ReadAll(f)
	runErr := cmd.Wait()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	data, _ := json.MarshalIndent(map[string]interface{}{
		"combined_output": string(output),
		"exit_code":       exitCode,
	}, "", "  ")
	return textResult(string(data))
}

func (d *Dispatcher) createServerConfig(ctx context.Context, args map[string]interface{}) CallResult {
	interactive := optionalBool(args, "interactive", true)
	cursorInteractive := optionalBool(args, "cursor_interactive", true)

	if !interactive {
		sc, err := serverConfigFromArgs(args)
		if err != nil {
			return errorResult(err.Error())
		}
		if err := config.Validate(*sc); err != nil {
			return errorResult(err.Error())
		}
		if err := d.store.Save(map[string]*config.ServerConfig{sc.Name: sc}, true); err != nil {
			return errorResult(fmt.Sprintf("failed to save config: %v", err))
		}
		return textResult(fmt.Sprintf("Created server %q.", sc.Name))
	}

	if !cursorInteractive {
		return textResult("External-terminal configuration is not available in this environment; use the in-chat wizard instead (interactive=true, cursor_interactive=true).")
	}

	prefill := map[string]string{}
	for _, k := range []string{"name", "host", "username", "connection_type"} {
		if v, ok := args[k].(string); ok && v != "" {
			prefill[k] = v
		}
	}
	if p, ok := args["port"].(float64); ok {
		prefill["port"] = fmt.Sprintf("%d", int(p))
	}

	_, rendered := d.wiz.Create(prefill)
	return textResult(rendered)
}

func serverConfigFromArgs(args map[string]interface{}) (*config.ServerConfig, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return nil, err
	}
	host, err := requireString(args, "host")
	if err != nil {
		return nil, err
	}
	username, err := requireString(args, "username")
	if err != nil {
		return nil, err
	}
	connType, err := requireString(args, "connection_type")
	if err != nil {
		return nil, err
	}
	canonType, err := config.ValidateConnectionType(connType)
	if err != nil {
		return nil, err
	}
	port := optionalInt(args, "port", 22)

	return &config.ServerConfig{
		Name:           name,
		Host:           host,
		Username:       username,
		Port:           port,
		ConnectionType: canonType,
	}, nil
}

func (d *Dispatcher) continueConfigSession(ctx context.Context, args map[string]interface{}) CallResult {
	sessionID, err := requireString(args, "session_id")
	if err != nil {
		return errorResult(err.Error())
	}
	fieldName, err := requireString(args, "field_name")
	if err != nil {
		return errorResult(err.Error())
	}
	fieldValue, _ := args["field_value"].(string)

	rendered, done, sc, err := d.wiz.Continue(sessionID, fieldName, fieldValue)
	if err != nil {
		return errorResult(err.Error())
	}
	if done && sc != nil {
		if saveErr := d.store.Save(map[string]*config.ServerConfig{sc.Name: sc}, true); saveErr != nil {
			return errorResult(fmt.Sprintf("wizard completed but save failed: %v", saveErr))
		}
	}
	return textResult(rendered)
}

func (d *Dispatcher) updateServerConfig(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	existing, ok, err := d.store.Get(name)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load server %q: %v", name, err))
	}
	if !ok {
		return errorResult(fmt.Sprintf("no such server: %s", name))
	}

	interactive := optionalBool(args, "interactive", true)
	if !interactive {
		updated := existing
		if v, ok := args["host"].(string); ok && v != "" {
			updated.Host = v
		}
		if v, ok := args["username"].(string); ok && v != "" {
			updated.Username = v
		}
		if v, ok := args["port"].(float64); ok {
			updated.Port = int(v)
		}
		if v, ok := args["connection_type"].(string); ok && v != "" {
			canon, cerr := config.ValidateConnectionType(v)
			if cerr != nil {
				return errorResult(cerr.Error())
			}
			updated.ConnectionType = canon
		}
		if err := config.Validate(updated); err != nil {
			return errorResult(err.Error())
		}
		if err := d.store.Save(map[string]*config.ServerConfig{name: &updated}, true); err != nil {
			return errorResult(fmt.Sprintf("failed to save config: %v", err))
		}
		return textResult(fmt.Sprintf("Updated server %q.", name))
	}

	prefill := map[string]string{
		"name":            existing.Name,
		"host":            existing.Host,
		"username":        existing.Username,
		"connection_type": existing.ConnectionType,
	}
	_, rendered := d.wiz.Create(prefill)
	return textResult(rendered)
}

func (d *Dispatcher) deleteServerConfig(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	_, err = d.store.Delete(name)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to delete server %q: %v", name, err))
	}
	return textResult(fmt.Sprintf("Deleted server %q (idempotent).", name))
}

func (d *Dispatcher) diagnoseConnection(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	sc, ok, err := d.store.Get(name)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to load server %q: %v", name, err))
	}
	if !ok {
		return errorResult(fmt.Sprintf("no such server: %s", name))
	}

	sessionName := pane.SessionNameFor(name)
	exists, _ := d.panes.Exists(ctx, sessionName)
	tail := ""
	if exists {
		tail, _ = d.panes.Capture(ctx, sessionName, 40)
	}

	reachable, pingDetail := probeHost(ctx, sc.Host)

	var b strings.Builder
	fmt.Fprintf(&b, "Diagnosis for %q:\n", name)
	fmt.Fprintf(&b, "  pane session exists: %v\n", exists)
	fmt.Fprintf(&b, "  host reachable (ping): %v (%s)\n", reachable, pingDetail)
	if exists {
		b.WriteString("\n--- pane tail ---\n" + tail + "\n")
	}
	b.WriteString("\nAdvice: ")
	switch {
	case !reachable:
		b.WriteString("the host did not respond to ping; check network connectivity or firewall rules before retrying connect_server.")
	case !exists:
		b.WriteString("no active pane session; call connect_server to establish one.")
	default:
		b.WriteString("host is reachable and a pane session exists; inspect the tail above for the last known state.")
	}
	return textResult(b.String())
}

// probeHost runs a local ping through the same local-process runner
// run_local_command uses, never through the pane — diagnose_connection's
// reachability check is local-process, not remote-shell.
func probeHost(ctx context.Context, host string) (bool, string) {
	if host == "" {
		return false, "no host configured"
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	cmd := exec.CommandContext(pingCtx, "ping", "-c", "1", "-W", "2", host)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return false, strings.TrimSpace(string(out))
	}
	return true, "1 packet received"
}

func (d *Dispatcher) getConnectionHistory(ctx context.Context, args map[string]interface{}) CallResult {
	name, err := requireString(args, "name")
	if err != nil {
		return errorResult(err.Error())
	}
	limit := optionalInt(args, "limit", 20)

	entries, err := d.ledger.RecentHistory(name, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to query history: %v", err))
	}
	data, _ := json.MarshalIndent(entries, "", "  ")
	return textResult(string(data))
}

func (d *Dispatcher) recordHistory(name string, action history.Action, outcome history.Outcome, detail string, started, finished time.Time) {
	if err := d.ledger.RecordConnectAttempt(name, action, outcome, detail, started, finished); err != nil {
		toolsLog.Warn("history_record_failed", "server", name, "error", err.Error())
	}
}
