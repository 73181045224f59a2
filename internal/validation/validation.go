// Package validation provides centralized input validation for arraymon
// configuration: system identifiers, display names, endpoints, and
// listen/controller addresses.
package validation

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"unicode"
)

// =============================================================================
// Name Validation
// =============================================================================

// NameRules defines the validation rules for entity names.
type NameRules struct {
	MinLength    int
	MaxLength    int
	AllowDots    bool
	AllowHyphens bool
	AllowUnders  bool
}

// SystemNameRules returns the rules for system display names. Dots are
// allowed so short hostnames work as names.
func SystemNameRules() NameRules {
	return NameRules{
		MinLength:    1,
		MaxLength:    255,
		AllowDots:    true,
		AllowHyphens: true,
		AllowUnders:  true,
	}
}

// ValidateName validates a name according to the given rules.
func ValidateName(name string, rules NameRules) error {
	if len(name) < rules.MinLength {
		return fmt.Errorf("name too short: minimum %d characters required", rules.MinLength)
	}
	if len(name) > rules.MaxLength {
		return fmt.Errorf("name too long: maximum %d characters allowed", rules.MaxLength)
	}

	if name == "." || name == ".." {
		return fmt.Errorf("name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("name cannot contain control characters at position %d", i)
		}
		if r == '/' || r == '\\' {
			return fmt.Errorf("name cannot contain path separators at position %d", i)
		}
		if !isAllowedNameChar(r, rules) {
			return fmt.Errorf("invalid character '%c' at position %d", r, i)
		}
	}

	return nil
}

func isAllowedNameChar(r rune, rules NameRules) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.':
		return rules.AllowDots
	case '-':
		return rules.AllowHyphens
	case '_':
		return rules.AllowUnders
	}
	return false
}

// ValidateSystemName validates a system display name. The name becomes
// the system tag on every emitted point.
func ValidateSystemName(name string) error {
	return ValidateName(name, SystemNameRules())
}

// =============================================================================
// System ID Validation
// =============================================================================

// ValidateSystemID validates a storage-system identifier. IDs appear in
// API paths and tags, so only unreserved characters are accepted.
// Upstream identifiers are 32-character hex WWNs, but shorter aliases
// are common in lab setups.
func ValidateSystemID(id string) error {
	if id == "" {
		return fmt.Errorf("system id cannot be empty")
	}
	if len(id) > 64 {
		return fmt.Errorf("system id too long: maximum 64 characters")
	}

	for i, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			continue
		}
		return fmt.Errorf("invalid character '%c' at position %d", r, i)
	}

	return nil
}

// =============================================================================
// Endpoint Validation
// =============================================================================

// ValidateEndpoint validates a management API base URL.
func ValidateEndpoint(raw string) error {
	if raw == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid endpoint: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint host cannot be empty")
	}

	return nil
}

// =============================================================================
// Address Validation
// =============================================================================

// ValidateListenAddr validates a host:port bind address. A bare ":port"
// form binds all interfaces.
func ValidateListenAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %v", addr, err)
	}
	if port == "" {
		return fmt.Errorf("listen address %q is missing a port", addr)
	}
	if host != "" {
		if ip := net.ParseIP(host); ip == nil {
			if err := ValidateHost(host); err != nil {
				return err
			}
		}
	}
	return nil
}

// ValidateHost validates a hostname or IP address, as used for probe
// controller targets.
func ValidateHost(host string) error {
	if host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return nil
	}
	if len(host) > 253 {
		return fmt.Errorf("hostname too long: maximum 253 characters")
	}

	for _, label := range strings.Split(host, ".") {
		if label == "" {
			return fmt.Errorf("hostname %q has an empty label", host)
		}
		if len(label) > 63 {
			return fmt.Errorf("hostname label %q too long: maximum 63 characters", label)
		}
		for i, r := range label {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				continue
			}
			if r == '-' && i > 0 && i < len(label)-1 {
				continue
			}
			return fmt.Errorf("invalid character '%c' in hostname %q", r, host)
		}
	}

	return nil
}
