package config

import (
	"fmt"
	"regexp"
	"strings"
)

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateName checks the server-name rule shared by §3's data model and
// the wizard's `name` field (len 1..64, [A-Za-z0-9][A-Za-z0-9_-]*).
func ValidateName(name string) error {
	if len(name) < 1 || len(name) > 64 {
		return fmt.Errorf("name must be 1-64 characters, got %d", len(name))
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("name must match [A-Za-z0-9][A-Za-z0-9_-]*, e.g. \"my-server1\"")
	}
	return nil
}

// ValidateWizardName applies the wizard's stricter name rule: the §3 regex
// plus a 3..20 length window (tighter than the 1..64 the data model allows
// for names created by other paths, e.g. direct mode).
func ValidateWizardName(name string) error {
	if len(name) < 3 || len(name) > 20 {
		return fmt.Errorf("name must be 3-20 characters, got %d", len(name))
	}
	if !nameRe.MatchString(name) {
		return fmt.Errorf("name must match [A-Za-z0-9][A-Za-z0-9_-]*, e.g. \"my-server1\"")
	}
	return nil
}

// ValidateHost checks the non-empty, no-whitespace host rule.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host must not be empty")
	}
	if strings.ContainsAny(host, " \t\n") {
		return fmt.Errorf("host must not contain whitespace, e.g. \"10.0.0.1\"")
	}
	return nil
}

// ValidateUsername checks the [A-Za-z0-9_-]+ rule.
func ValidateUsername(username string) error {
	if !usernameRe.MatchString(username) {
		return fmt.Errorf("username must match [A-Za-z0-9_-]+, e.g. \"bob\"")
	}
	return nil
}

// ValidatePort checks the 1..65535 range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, e.g. \"22\"")
	}
	return nil
}

// ValidateConnectionType checks the {ssh, relay} enum, case-insensitively,
// and returns the canonical lowercase form.
func ValidateConnectionType(connType string) (string, error) {
	lower := strings.ToLower(connType)
	if lower != "ssh" && lower != "relay" {
		return "", fmt.Errorf("connection_type must be \"ssh\" or \"relay\", e.g. \"ssh\"")
	}
	return lower, nil
}

// ParseBool accepts the case-insensitive {true, false, yes, no, 1, 0} forms
// the wizard's boolean fields use.
func ParseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true, nil
	case "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("must be one of true/false/yes/no/1/0, e.g. \"yes\"")
	}
}

// Validate checks every required field of a fully-assembled ServerConfig
// before it is handed to the Store. This is the direct-mode and
// wizard-completion validation path.
func Validate(sc ServerConfig) error {
	if err := ValidateName(sc.Name); err != nil {
		return err
	}
	if err := ValidateHost(sc.Host); err != nil {
		return err
	}
	if err := ValidateUsername(sc.Username); err != nil {
		return err
	}
	if err := ValidatePort(sc.EffectivePort()); err != nil {
		return err
	}
	if _, err := ValidateConnectionType(sc.ConnectionType); err != nil {
		return err
	}
	return nil
}
