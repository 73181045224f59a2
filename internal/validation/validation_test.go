package validation

import (
	"testing"
)

func TestValidateName(t *testing.T) {
	rules := SystemNameRules()

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "array1", false},
		{"with hyphen", "prod-array-01", false},
		{"with underscore", "lab_array", false},
		{"numbers", "123", false},
		{"hostname-like", "array01.lab.example", false},
		{"empty", "", true},
		{"dot", ".", true},
		{"dotdot", "..", true},
		{"hidden", ".hidden", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"control char", "a\x00b", true},
		{"space", "array 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input, rules)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateSystemID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"wwn", "600A098000F63714000000005E79C888", false},
		{"lowercase hex", "600a098000f63714000000005e79c888", false},
		{"alias", "lab-array-01", false},
		{"underscore", "array_1", false},
		{"empty", "", true},
		{"slash", "a/b", true},
		{"space", "a b", true},
		{"too long", "0123456789012345678901234567890123456789012345678901234567890123x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSystemID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSystemID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://10.0.0.10:8443", false},
		{"http", "http://proxy.lab:8080", false},
		{"with path", "https://proxy.example.com/devmgr", false},
		{"empty", "", true},
		{"no scheme", "10.0.0.10:8443", true},
		{"bad scheme", "ftp://10.0.0.10", true},
		{"scheme only", "https://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEndpoint(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEndpoint(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateListenAddr(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"port only", ":9090", false},
		{"host and port", "127.0.0.1:9090", false},
		{"hostname", "localhost:9090", false},
		{"ipv6", "[::1]:9090", false},
		{"empty", "", true},
		{"no port", "127.0.0.1", true},
		{"port missing after colon", "localhost:", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateListenAddr(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateListenAddr(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"ipv4", "10.0.0.10", false},
		{"ipv6", "fd00::10", false},
		{"hostname", "ctrl-a.lab.example", false},
		{"single label", "ctrl-a", false},
		{"empty", "", true},
		{"leading hyphen", "-ctrl.lab", true},
		{"trailing hyphen", "ctrl-.lab", true},
		{"empty label", "ctrl..lab", true},
		{"underscore", "ctrl_a.lab", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHost(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateHost(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
