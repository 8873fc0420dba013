// Package docker manages the optional in-container leg of a server
// connection: inspecting, creating, and execing into the container a
// ServerConfig's docker section names. The Docker socket is never mounted
// into containers the core creates; containers run alongside the
// connection, not as a host for it.
package docker

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os/exec"
	"slices"
	"strings"
)

// Container manages a single Docker container's lifecycle by name.
type Container struct {
	name  string
	image string
}

// NewContainer creates a container handle bound to an image, for use with
// Create. If image is empty, a generic base image is assumed.
func NewContainer(name string, image string) *Container {
	if image == "" {
		image = "ubuntu:22.04"
	}
	return &Container{name: name, image: image}
}

// FromName creates a container handle for an existing container by name.
// Supports every lifecycle operation except Create.
func FromName(name string) *Container {
	return &Container{name: name}
}

// Name returns the container name.
func (c *Container) Name() string { return c.name }

// Exists returns true if the container exists (running or stopped).
func (c *Container) Exists(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx,
		"docker", "inspect", "--format", "{{.State.Status}}", c.name,
	).CombinedOutput()
	if err != nil {
		if isExitError(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspecting container %s: %s: %w", c.name, strings.TrimSpace(string(out)), err)
	}
	return true, nil
}

// IsRunning returns true if the container is currently running.
func (c *Container) IsRunning(ctx context.Context) (bool, error) {
	out, err := exec.CommandContext(ctx,
		"docker", "inspect", "--format", "{{.State.Running}}", c.name,
	).CombinedOutput()
	if err != nil {
		if isExitError(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspecting container %s: %w", c.name, err)
	}
	return strings.TrimSpace(string(out)) == "true", nil
}

// Create creates the container from cfg without starting it. If the
// container already exists, this is a no-op returning the existing name —
// the orchestrator's docker section is phrased as "inspect, then create if
// missing", so Create only ever runs once a prior Exists check failed, but
// it stays idempotent in case of a narrow race.
func (c *Container) Create(ctx context.Context, cfg *ContainerConfig) (string, error) {
	if cfg == nil {
		return "", fmt.Errorf("cannot create container %s: nil config", c.name)
	}
	if c.image == "" {
		return "", fmt.Errorf("cannot create container %s: no image specified", c.name)
	}

	args := []string{"create", "--name", c.name, "--label", "managed-by=remote-terminal-mcp"}

	if cfg.runOptions != "" {
		args = append(args, splitRunOptions(cfg.runOptions)...)
	}

	for _, p := range cfg.ports {
		args = append(args, "-p", p)
	}
	for _, v := range cfg.volumes {
		args = append(args, "-v", v)
	}
	for _, k := range slices.Sorted(maps.Keys(cfg.environment)) {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, cfg.environment[k]))
	}

	args = append(args, c.image, "sleep", "infinity")

	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		exists, existsErr := c.Exists(ctx)
		if existsErr == nil && exists {
			return c.name, nil
		}
		return "", fmt.Errorf("creating container %s: %s: %w", c.name, strings.TrimSpace(string(out)), err)
	}
	return c.name, nil
}

// Start starts a stopped container. A no-op if already running.
func (c *Container) Start(ctx context.Context) error {
	out, err := exec.CommandContext(ctx, "docker", "start", c.name).CombinedOutput()
	if err != nil {
		running, runErr := c.IsRunning(ctx)
		if runErr == nil && running {
			return nil
		}
		return fmt.Errorf("starting container %s: %s: %w", c.name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// ExecPrefix returns the argv prefix for execing a shell inside the
// container: ["docker", "exec", "-it", name]. The orchestrator sends this
// joined with a shell word through the pane manager's send_keys, the same
// way every other connection-sequence command is driven — the core never
// execs docker directly against the interactive session.
func (c *Container) ExecPrefix() []string {
	return []string{"docker", "exec", "-it", c.name}
}

func splitRunOptions(runOptions string) []string {
	// run_options is an opaque, space-separated argument string from the
	// ServerConfig; the core does not interpret it beyond splitting.
	return strings.Fields(runOptions)
}

func isExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
