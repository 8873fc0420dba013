// Package wizard implements the Config Session Registry (spec §4.G): an
// in-process, ephemeral table of multi-step configuration sessions, one
// per in-chat create_server_config/continue_config_session sequence.
// Sessions are never persisted — a process restart loses any in-flight
// wizard.
package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/config"
)

// field describes one step of the canonical wizard schema.
type field struct {
	name       string
	prompt     string
	defaultVal string
	optional   bool
	dependsOn  string // only asked if this earlier boolean field was "true"
}

// fieldSchema is the canonical field order spec.md §3 names for
// ConfigSession.
var fieldSchema = []field{
	{name: "name", prompt: "Server name (3-20 chars, letters/digits/-/_, must start alphanumeric)"},
	{name: "host", prompt: "Host (hostname or IP)"},
	{name: "username", prompt: "Username"},
	{name: "port", prompt: "Port", defaultVal: "22"},
	{name: "connection_type", prompt: "Connection type (ssh or relay)", defaultVal: "ssh"},
	{name: "docker_enabled", prompt: "Use a docker container? (yes/no)", defaultVal: "no"},
	{name: "docker_container", prompt: "Docker container name", dependsOn: "docker_enabled"},
	{name: "docker_image", prompt: "Docker image", defaultVal: "ubuntu:22.04", dependsOn: "docker_enabled"},
	{name: "sync_enabled", prompt: "Enable auto-sync? (yes/no)", defaultVal: "no"},
	{name: "sync_ftp_port", prompt: "Sync FTP port", defaultVal: "2121", dependsOn: "sync_enabled"},
	{name: "sync_ftp_user", prompt: "Sync FTP username", dependsOn: "sync_enabled"},
	{name: "sync_ftp_password", prompt: "Sync FTP password", dependsOn: "sync_enabled"},
}

var maskedFields = map[string]bool{
	"sync_ftp_password": true,
}

// Session is one in-flight wizard, identified by ID.
type Session struct {
	ID        string
	completed map[string]string
	nextIdx   int
}

// Registry holds every in-flight wizard session, guarded by a single
// mutex — sessions are expected to number in the single digits at any
// time, so a map plus RWMutex beats any fancier structure.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() int64
}

// New builds an empty Registry. nowMillis supplies the current Unix
// millisecond timestamp used to mint session IDs; production callers pass
// time.Now().UnixMilli, tests can pass a fixed clock.
func New(nowMillis func() int64) *Registry {
	return &Registry{sessions: map[string]*Session{}, now: nowMillis}
}

// Create starts a new session, pre-filling any fields supplied up front
// (e.g. from create_server_config's direct arguments when interactive
// mode is still requested for the remaining fields). Returns the
// session's rendered first-step prompt.
func (r *Registry) Create(prefill map[string]string) (sessionID string, rendered string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := fmt.Sprintf("config_%d_%s", r.now(), uuid.New().String()[:8])
	s := &Session{ID: id, completed: map[string]string{}}
	for k, v := range prefill {
		s.completed[k] = v
	}
	s.nextIdx = firstUnfilledIndex(s)
	r.sessions[id] = s
	return id, render(s)
}

// Continue applies one field value to the named session, validating it
// before advancing. On validation failure the session is left untouched
// and the returned text names the violated rule.
func (r *Registry) Continue(sessionID, fieldName, fieldValue string) (rendered string, done bool, finalConfig *config.ServerConfig, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return "", false, nil, fmt.Errorf("no such config session: %s", sessionID)
	}

	f, ok := fieldByName(fieldName)
	if !ok {
		return "", false, nil, fmt.Errorf("unknown field %q", fieldName)
	}

	normalized, verr := validateField(f, fieldValue)
	if verr != nil {
		return fmt.Sprintf("Invalid value for %s: %v", fieldName, verr), false, nil, nil
	}

	s.completed[fieldName] = normalized
	s.nextIdx = firstUnfilledIndex(s)

	if s.nextIdx >= len(fieldSchema) {
		sc, buildErr := materialize(s)
		if buildErr != nil {
			return fmt.Sprintf("Could not finalize configuration: %v", buildErr), false, nil, nil
		}
		delete(r.sessions, sessionID)
		return renderCompletion(sc), true, sc, nil
	}

	return render(s), false, nil, nil
}

// firstUnfilledIndex walks the schema in order, skipping fields whose
// dependsOn condition is false, and returns the index of the next field
// that still needs a value, or len(fieldSchema) if the session is done.
func firstUnfilledIndex(s *Session) int {
	for i, f := range fieldSchema {
		if _, ok := s.completed[f.name]; ok {
			continue
		}
		if f.dependsOn != "" {
			gate, gated := s.completed[f.dependsOn]
			if !gated || strings.ToLower(gate) != "true" && strings.ToLower(gate) != "yes" {
				continue
			}
		}
		return i
	}
	return len(fieldSchema)
}

func fieldByName(name string) (field, bool) {
	for _, f := range fieldSchema {
		if f.name == name {
			return f, true
		}
	}
	return field{}, false
}

func validateField(f field, value string) (string, error) {
	switch f.name {
	case "name":
		if err := config.ValidateWizardName(value); err != nil {
			return "", err
		}
		return value, nil
	case "host":
		if err := config.ValidateHost(value); err != nil {
			return "", err
		}
		return value, nil
	case "username":
		if err := config.ValidateUsername(value); err != nil {
			return "", err
		}
		return value, nil
	case "port", "sync_ftp_port":
		port, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return "", fmt.Errorf("port must be an integer, e.g. \"22\"")
		}
		if err := config.ValidatePort(port); err != nil {
			return "", err
		}
		return strconv.Itoa(port), nil
	case "connection_type":
		canon, err := config.ValidateConnectionType(value)
		if err != nil {
			return "", err
		}
		return canon, nil
	case "docker_enabled", "sync_enabled":
		b, err := config.ParseBool(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	default:
		return value, nil
	}
}

func render(s *Session) string {
	var b strings.Builder
	total := countApplicable(s)
	fmt.Fprintf(&b, "Step %d/%d\n\n", len(s.completed)+1, total)

	f := fieldSchema[s.nextIdx]
	if f.defaultVal != "" {
		fmt.Fprintf(&b, "%s [default: %s]:\n\n", f.prompt, f.defaultVal)
	} else {
		fmt.Fprintf(&b, "%s:\n\n", f.prompt)
	}

	if len(s.completed) > 0 {
		b.WriteString("Completed so far:\n")
		for _, sf := range fieldSchema {
			v, ok := s.completed[sf.name]
			if !ok {
				continue
			}
			if maskedFields[sf.name] {
				v = "***"
			}
			fmt.Fprintf(&b, "  - %s: %s\n", sf.name, v)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Call continue_config_session with {session_id: %q, field_name: %q, field_value: <your answer>}.", s.ID, f.name)
	return b.String()
}

// countApplicable estimates the total step count including the current
// gating state, recomputed each render since later booleans can shrink
// or grow the remaining field set.
func countApplicable(s *Session) int {
	count := 0
	for _, f := range fieldSchema {
		if f.dependsOn == "" {
			count++
			continue
		}
		gate, ok := s.completed[f.dependsOn]
		if ok && (strings.ToLower(gate) == "true" || strings.ToLower(gate) == "yes") {
			count++
		}
	}
	return count
}

func materialize(s *Session) (*config.ServerConfig, error) {
	sc := &config.ServerConfig{
		Name:           s.completed["name"],
		Host:           s.completed["host"],
		Username:       s.completed["username"],
		ConnectionType: s.completed["connection_type"],
	}
	if p, ok := s.completed["port"]; ok {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", p)
		}
		sc.Port = port
	}

	if dockerEnabled, ok := s.completed["docker_enabled"]; ok && dockerEnabled == "true" {
		sc.Docker = &config.DockerConfig{
			ContainerName: s.completed["docker_container"],
			Image:         s.completed["docker_image"],
			AutoCreate:    true,
			Shell:         "zsh",
		}
	}

	if syncEnabled, ok := s.completed["sync_enabled"]; ok && syncEnabled == "true" {
		ftpPort := 2121
		if p, ok := s.completed["sync_ftp_port"]; ok {
			if parsed, err := strconv.Atoi(p); err == nil {
				ftpPort = parsed
			}
		}
		sc.Sync = &config.SyncConfig{
			Enabled:     true,
			FTPPort:     ftpPort,
			FTPUser:     s.completed["sync_ftp_user"],
			FTPPassword: s.completed["sync_ftp_password"],
		}
	}

	if err := config.Validate(*sc); err != nil {
		return nil, err
	}
	return sc, nil
}

func renderCompletion(sc *config.ServerConfig) string {
	return fmt.Sprintf("Configuration for %q saved successfully.", sc.Name)
}
