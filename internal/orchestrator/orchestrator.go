// Package orchestrator implements the Connection Orchestrator (spec §4.F):
// the state machine behind connect_server, composing the Pane Manager,
// Readiness Detector, Environment Manager, and Auto-Sync Manager into one
// user-level connect operation.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/docker"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/environment"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/pane"
	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/ready"
)

var orchLog = logging.ForComponent(logging.CompOrchestrator)

const (
	relayPollInterval = 5 * time.Second
	relayPollTimeout  = 120 * time.Second
)

// Result is the outcome of one connect_server invocation.
type Result struct {
	Success     bool
	SessionName string
	FinalTail   string
	Warnings    []string
	Error       string
}

// AutosyncDeployer is the narrow surface the orchestrator needs from the
// Auto-Sync Manager, kept as an interface so tests can stub it without
// pulling in the embedded FTP bundle.
type AutosyncDeployer interface {
	Deploy(ctx context.Context, sessionName string, sc config.SyncConfig) string
}

// EnvironmentConfigurer is the narrow surface needed from the Environment
// Manager.
type EnvironmentConfigurer interface {
	Configure(ctx context.Context, sessionName string, autoConfigureShell bool) (warnings []string, err error)
}

// Orchestrator drives one connect_server call end to end.
type Orchestrator struct {
	panes   pane.Manager
	env     EnvironmentConfigurer
	sync    AutosyncDeployer
	limiter *rate.Limiter
}

// New builds an Orchestrator. env and sync may be nil to disable those
// optional stages entirely (e.g. in tests exercising only SSH/docker
// wiring).
func New(panes pane.Manager, env EnvironmentConfigurer, sync AutosyncDeployer) *Orchestrator {
	return &Orchestrator{
		panes:   panes,
		env:     env,
		sync:    sync,
		limiter: rate.NewLimiter(rate.Every(relayPollInterval), 1),
	}
}

// Connect runs the full state machine for a single server record.
func (o *Orchestrator) Connect(ctx context.Context, sc config.ServerConfig) Result {
	sessionName := sc.SessionName()

	// Kill-then-recreate is unconditional: reusing a session proved more
	// bug-prone than rebuilding it every time.
	if err := o.panes.Kill(ctx, sessionName); err != nil {
		orchLog.Warn("kill_before_connect_failed", "session", sessionName, "error", err.Error())
	}
	if err := o.panes.Create(ctx, sessionName, ""); err != nil {
		return Result{Error: fmt.Sprintf("failed to create pane session: %v", err)}
	}

	var warnings []string

	switch strings.ToLower(sc.ConnectionType) {
	case "relay":
		if err := o.panes.SendKeys(ctx, sessionName, "relay-cli", true); err != nil {
			return o.fail(ctx, sessionName, fmt.Sprintf("failed to launch relay-cli: %v", err))
		}
		if err := o.waitForRelayLogin(ctx, sessionName); err != nil {
			return o.fail(ctx, sessionName, err.Error())
		}
		if sc.JumpHost != nil {
			if err := o.sshTo(ctx, sessionName, sc.JumpHost.Host, sc.JumpHost.Username, sc.JumpHost.Port); err != nil {
				return o.fail(ctx, sessionName, err.Error())
			}
			if sc.JumpHost.Password != "" {
				if err := o.panes.SendKeys(ctx, sessionName, sc.JumpHost.Password, true); err != nil {
					return o.fail(ctx, sessionName, fmt.Sprintf("failed to send jump-host password: %v", err))
				}
			}
		}
		if err := o.sshTo(ctx, sessionName, sc.Host, sc.Username, sc.EffectivePort()); err != nil {
			return o.fail(ctx, sessionName, err.Error())
		}
	case "ssh":
		if err := o.sshTo(ctx, sessionName, sc.Host, sc.Username, sc.EffectivePort()); err != nil {
			return o.fail(ctx, sessionName, err.Error())
		}
	default:
		return o.fail(ctx, sessionName, fmt.Sprintf("unsupported connection_type %q", sc.ConnectionType))
	}

	tail, verdictErr := o.waitForShell(ctx, sessionName)
	if verdictErr != nil {
		return o.fail(ctx, sessionName, verdictErr.Error())
	}

	if sc.Docker != nil {
		dockerTail, err := o.enterContainer(ctx, sessionName, sc.Docker)
		if err != nil {
			return o.fail(ctx, sessionName, err.Error())
		}
		tail = dockerTail

		if strings.EqualFold(sc.Docker.Shell, "zsh") && o.env != nil {
			envWarnings, err := o.env.Configure(ctx, sessionName, true)
			if err != nil {
				return o.fail(ctx, sessionName, fmt.Sprintf("environment manager failed: %v", err))
			}
			warnings = append(warnings, envWarnings...)
		}
	}

	if sc.Sync != nil && sc.Sync.Enabled && o.sync != nil {
		if w := o.sync.Deploy(ctx, sessionName, *sc.Sync); w != "" {
			warnings = append(warnings, w)
		}
	}

	finalTail, err := o.panes.Capture(ctx, sessionName, 40)
	if err == nil {
		tail = finalTail
	}

	orchLog.Info("connect_succeeded", "session", sessionName, "type", sc.ConnectionType)
	return Result{Success: true, SessionName: sessionName, FinalTail: tail, Warnings: warnings}
}

// Disconnect kills the pane session. Idempotent: killing an absent
// session is not an error.
func (o *Orchestrator) Disconnect(ctx context.Context, sc config.ServerConfig) error {
	return o.panes.Kill(ctx, sc.SessionName())
}

func (o *Orchestrator) fail(ctx context.Context, sessionName string, reason string) Result {
	tail, _ := o.panes.Capture(ctx, sessionName, 40)
	_ = o.panes.Kill(ctx, sessionName)
	orchLog.Warn("connect_failed", "session", sessionName, "reason", reason)
	return Result{Success: false, SessionName: sessionName, FinalTail: tail, Error: reason}
}

func (o *Orchestrator) sshTo(ctx context.Context, sessionName, host, username string, port int) error {
	cmd := fmt.Sprintf("ssh -p %d %s@%s", port, username, host)
	if err := o.panes.SendKeys(ctx, sessionName, cmd, true); err != nil {
		return fmt.Errorf("failed to send ssh command: %w", err)
	}
	return nil
}

// waitForRelayLogin polls capture-pane at a fixed 5s interval for up to
// 120s, using the rate limiter so bursty retries never hammer tmux.
func (o *Orchestrator) waitForRelayLogin(ctx context.Context, sessionName string) error {
	deadline := time.Now().Add(relayPollTimeout)
	for {
		if err := o.limiter.Wait(ctx); err != nil {
			return err
		}
		tail, err := o.panes.Capture(ctx, sessionName, 40)
		if err != nil {
			return fmt.Errorf("failed to capture pane while waiting for relay login: %w", err)
		}
		if ready.RelayLoggedIn(tail) {
			return nil
		}
		if ready.Fatal(tail) {
			return fmt.Errorf("relay login failed: %s", ready.FatalPhrase(tail))
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after 120s waiting for relay login; interactive authentication (QR / fingerprint / code) may be required")
		}
		logging.Aggregate(logging.CompOrchestrator, "relay_poll:"+sessionName)
	}
}

// waitForShell polls until the detector reports a plain shell prompt or a
// known fatal phrase, returning the tail either way.
func (o *Orchestrator) waitForShell(ctx context.Context, sessionName string) (string, error) {
	deadline := time.Now().Add(relayPollTimeout)
	for {
		tail, err := o.panes.Capture(ctx, sessionName, 40)
		if err != nil {
			return "", fmt.Errorf("failed to capture pane while waiting for shell: %w", err)
		}
		if ready.Fatal(tail) {
			return tail, fmt.Errorf("connection failed: %s", ready.FatalPhrase(tail))
		}
		if ready.AtShellPrompt(tail) {
			return tail, nil
		}
		if time.Now().After(deadline) {
			return tail, fmt.Errorf("timed out waiting for shell prompt")
		}
		time.Sleep(1 * time.Second)
	}
}

// enterContainer implements the docker branch: inspect, auto-create if
// permitted, start if stopped, exec into it.
func (o *Orchestrator) enterContainer(ctx context.Context, sessionName string, dc *config.DockerConfig) (string, error) {
	if err := docker.CheckAvailability(ctx); err != nil {
		return "", err
	}

	c := docker.NewContainer(dc.ContainerName, dc.Image)
	exists, err := c.Exists(ctx)
	if err != nil {
		return "", fmt.Errorf("checking container existence: %w", err)
	}
	if !exists {
		if !dc.AutoCreate {
			return "", fmt.Errorf("container %s does not exist and docker.auto_create is false", dc.ContainerName)
		}
		cfg := docker.NewContainerConfig(dc.Ports, dc.Volumes, dc.RunOptions)
		if _, err := c.Create(ctx, cfg); err != nil {
			return "", fmt.Errorf("creating container: %w", err)
		}
		if err := c.Start(ctx); err != nil {
			return "", fmt.Errorf("starting newly created container: %w", err)
		}
	} else {
		running, err := c.IsRunning(ctx)
		if err != nil {
			return "", fmt.Errorf("checking container running state: %w", err)
		}
		if !running {
			if err := c.Start(ctx); err != nil {
				return "", fmt.Errorf("starting container: %w", err)
			}
		}
	}

	execCmd := strings.Join(append(c.ExecPrefix(), "bash"), " ")
	if err := o.panes.SendKeys(ctx, sessionName, execCmd, true); err != nil {
		return "", fmt.Errorf("failed to exec into container: %w", err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		tail, err := o.panes.Capture(ctx, sessionName, 40)
		if err != nil {
			return "", fmt.Errorf("failed to capture pane while entering container: %w", err)
		}
		if ready.Fatal(tail) {
			return tail, fmt.Errorf("entering container failed: %s", ready.FatalPhrase(tail))
		}
		if ready.InContainer(tail, dc.ContainerName) || ready.AtShellPrompt(tail) {
			return tail, nil
		}
		if time.Now().After(deadline) {
			return tail, fmt.Errorf("timed out waiting for container shell")
		}
		time.Sleep(500 * time.Millisecond)
	}
}
