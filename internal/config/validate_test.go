package config

import "testing"

func TestValidatePort(t *testing.T) {
	cases := []struct {
		port    int
		wantErr bool
	}{
		{1, false},
		{22, false},
		{65535, false},
		{0, true},
		{65536, true},
		{99999, true},
		{-1, true},
	}
	for _, c := range cases {
		err := ValidatePort(c.port)
		if c.wantErr && err == nil {
			t.Errorf("ValidatePort(%d): expected error, got nil", c.port)
		}
		if !c.wantErr && err != nil {
			t.Errorf("ValidatePort(%d): unexpected error: %v", c.port, err)
		}
	}
}

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"alpha", false},
		{"a1-b_2", false},
		{"_bad", true},
		{"", true},
		{"has space", true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if c.wantErr != (err != nil) {
			t.Errorf("ValidateName(%q): wantErr=%v got err=%v", c.name, c.wantErr, err)
		}
	}
}

func TestValidateConnectionTypeCaseInsensitive(t *testing.T) {
	for _, in := range []string{"ssh", "SSH", "Ssh", "relay", "RELAY"} {
		if _, err := ValidateConnectionType(in); err != nil {
			t.Errorf("ValidateConnectionType(%q): unexpected error: %v", in, err)
		}
	}
	if _, err := ValidateConnectionType("telnet"); err == nil {
		t.Error("ValidateConnectionType(\"telnet\"): expected error")
	}
}

func TestParseBool(t *testing.T) {
	truthy := []string{"true", "TRUE", "yes", "1", "Yes"}
	falsy := []string{"false", "no", "0", "NO"}
	for _, s := range truthy {
		v, err := ParseBool(s)
		if err != nil || !v {
			t.Errorf("ParseBool(%q) = %v, %v; want true, nil", s, v, err)
		}
	}
	for _, s := range falsy {
		v, err := ParseBool(s)
		if err != nil || v {
			t.Errorf("ParseBool(%q) = %v, %v; want false, nil", s, v, err)
		}
	}
	if _, err := ParseBool("maybe"); err == nil {
		t.Error("ParseBool(\"maybe\"): expected error")
	}
}
