package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/autosync"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/environment"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/history"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/orchestrator"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/rpc"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/tools"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/wizard"
)

const serverVersion = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to the server registry YAML file (overrides REMOTE_TERMINAL_CONFIG and the default)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	debug := os.Getenv("REMOTE_TERMINAL_DEBUG") != ""
	logDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		logDir = filepath.Join(home, ".remote-terminal")
	}
	logging.Init(logging.Config{
		LogDir: logDir,
		Debug:  debug,
	})
	defer logging.Shutdown()

	path := resolveConfigPath(*configPath)
	store := config.NewStore(path)
	if err := store.EnsureExists(); err != nil {
		logging.Logger().Error("failed to initialize config store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	panes := pane.NewTmuxManager()
	if err := pane.IsAvailable(); err != nil {
		logging.Logger().Warn("tmux not found on PATH; connect_server will fail until it is installed", slog.String("error", err.Error()))
	}

	env := environment.New(panes)
	sync := autosync.New(panes)
	orch := orchestrator.New(panes, env, sync)
	wiz := wizard.New(func() int64 { return time.Now().UnixMilli() })

	ledger, err := history.Open(os.Getenv("REMOTE_TERMINAL_HISTORY_DB"))
	if err != nil {
		logging.Logger().Warn("history ledger disabled due to open failure", slog.String("error", err.Error()))
		ledger, _ = history.Open("")
	}
	defer ledger.Close()

	go func() {
		if err := store.WatchExternalEdits(ctx); err != nil && ctx.Err() == nil {
			logging.Logger().Warn("config file watch stopped", slog.String("error", err.Error()))
		}
	}()

	dispatcher := tools.New(store, panes, orch, wiz, ledger)

	handle := func(method string, params json.RawMessage) (interface{}, *rpc.Error) {
		return dispatch(ctx, dispatcher, method, params)
	}

	if err := rpc.Loop(os.Stdin, os.Stdout, handle); err != nil {
		logging.Logger().Error("rpc loop exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv("REMOTE_TERMINAL_CONFIG"); envValue != "" {
		return envValue
	}
	defaultPath, err := config.DefaultPath()
	if err != nil {
		logging.Logger().Error("failed to resolve default config path", slog.String("error", err.Error()))
		os.Exit(1)
	}
	return defaultPath
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

type initializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    map[string]interface{} `json:"capabilities"`
	ServerInfo      map[string]string      `json:"serverInfo"`
}

type toolsListResult struct {
	Tools []toolDescriptor `json:"tools"`
}

type toolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func dispatch(ctx context.Context, d *tools.Dispatcher, method string, params json.RawMessage) (interface{}, *rpc.Error) {
	switch method {
	case "initialize":
		var p initializeParams
		_ = json.Unmarshal(params, &p)
		// The client's requested protocol version is echoed verbatim:
		// clients may request versions this server has never seen, and
		// the version string is treated opaquely.
		return initializeResult{
			ProtocolVersion: p.ProtocolVersion,
			Capabilities:    map[string]interface{}{"tools": map[string]interface{}{}},
			ServerInfo:      map[string]string{"name": "remote-terminal-mcp", "version": serverVersion},
		}, nil

	case "notifications/initialized":
		return nil, nil

	case "tools/list":
		catalog := d.Catalog()
		descriptors := make([]toolDescriptor, 0, len(catalog))
		for _, t := range catalog {
			descriptors = append(descriptors, toolDescriptor{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}
		return toolsListResult{Tools: descriptors}, nil

	case "tools/call":
		var p toolsCallParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, &rpc.Error{Code: rpc.CodeInvalidParams, Message: fmt.Sprintf("invalid tools/call params: %v", err)}
		}
		return d.Call(ctx, p.Name, p.Arguments), nil

	default:
		return nil, rpc.MethodNotFound(method)
	}
}
