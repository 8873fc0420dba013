// Package config implements the YAML-backed server registry: the single
// source of truth for remote-server definitions. It never caches state
// across calls — every Load re-reads the file from disk, and every Save
// re-reads before merging, exactly so that no two calls can observe a
// stale in-memory copy.
package config

// JumpHost describes an intermediate SSH hop used by relay-type servers.
type JumpHost struct {
	Host     string `yaml:"host"`
	Username string `yaml:"username"`
	Port     int    `yaml:"port,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// DockerConfig describes an optional in-container workflow for a server.
type DockerConfig struct {
	ContainerName string   `yaml:"container_name"`
	Image         string   `yaml:"image,omitempty"`
	AutoCreate    bool     `yaml:"auto_create,omitempty"`
	Ports         []string `yaml:"ports,omitempty"`
	Volumes       []string `yaml:"volumes,omitempty"`
	Shell         string   `yaml:"shell,omitempty"` // "bash" | "zsh"
	RunOptions    string   `yaml:"run_options,omitempty"`
}

// SyncConfig describes the optional embedded-FTP auto-sync workflow.
type SyncConfig struct {
	Enabled         bool     `yaml:"enabled"`
	RemoteWorkspace string   `yaml:"remote_workspace,omitempty"`
	LocalWorkspace  string   `yaml:"local_workspace,omitempty"`
	FTPPort         int      `yaml:"ftp_port,omitempty"`
	FTPUser         string   `yaml:"ftp_user,omitempty"`
	FTPPassword     string   `yaml:"ftp_password,omitempty"`
	IncludePatterns []string `yaml:"include_patterns,omitempty"`
	ExcludePatterns []string `yaml:"exclude_patterns,omitempty"`
}

// BOSConfig is opaque object-storage credentials passed through to scripts;
// the core never interprets its contents.
type BOSConfig struct {
	AccessKey  string `yaml:"access_key,omitempty"`
	SecretKey  string `yaml:"secret_key,omitempty"`
	Bucket     string `yaml:"bucket,omitempty"`
	ConfigPath string `yaml:"config_path,omitempty"`
}

// ServerConfig is one registered remote server.
type ServerConfig struct {
	Name           string        `yaml:"-"` // populated from the map key, never serialized twice
	Host           string        `yaml:"host"`
	Username       string        `yaml:"username"`
	Port           int           `yaml:"port,omitempty"`
	ConnectionType string        `yaml:"connection_type"`
	JumpHost       *JumpHost     `yaml:"jump_host,omitempty"`
	Password       string        `yaml:"password,omitempty"`
	Description    string        `yaml:"description,omitempty"`
	Docker         *DockerConfig `yaml:"docker,omitempty"`
	Sync           *SyncConfig   `yaml:"sync,omitempty"`
	BOS            *BOSConfig    `yaml:"bos,omitempty"`
}

// SessionName is the derived tmux-style pane session name for this server.
func (s ServerConfig) SessionName() string {
	return s.Name + "_session"
}

// EffectivePort returns Port, defaulting to 22 when unset.
func (s ServerConfig) EffectivePort() int {
	if s.Port <= 0 {
		return 22
	}
	return s.Port
}

// Redacted returns a copy of s with secret fields blanked, safe to return
// from get_server_info / list_servers.
func (s ServerConfig) Redacted() ServerConfig {
	r := s
	if r.Password != "" {
		r.Password = "***"
	}
	if r.JumpHost != nil {
		jh := *r.JumpHost
		if jh.Password != "" {
			jh.Password = "***"
		}
		r.JumpHost = &jh
	}
	if r.Sync != nil {
		sc := *r.Sync
		if sc.FTPPassword != "" {
			sc.FTPPassword = "***"
		}
		r.Sync = &sc
	}
	if r.BOS != nil {
		bc := *r.BOS
		if bc.SecretKey != "" {
			bc.SecretKey = "***"
		}
		r.BOS = &bc
	}
	return r
}

// GlobalSettings is an optional top-level map the document may carry
// alongside servers; the core passes it through unmodified.
type GlobalSettings map[string]any

// Document is the on-disk shape of ~/.remote-terminal/config.yaml.
type Document struct {
	Servers        map[string]*ServerConfig `yaml:"servers"`
	GlobalSettings GlobalSettings           `yaml:"global_settings,omitempty"`
}

// ExampleServerName is the well-known placeholder the Store creates on
// first run, and the marker used to distinguish it from user data.
const ExampleServerName = "example-server"

func exampleServer() *ServerConfig {
	return &ServerConfig{
		Name:           ExampleServerName,
		Host:           "192.0.2.1",
		Username:       "example-user",
		Port:           22,
		ConnectionType: "ssh",
		Description:    "Placeholder entry created on first run. Edit or delete freely.",
	}
}
