package config

import (
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

const minProductionPasswordLen = 12

func validatePort(port, name string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", name)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", name, err)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", name, n)
	}
	return nil
}

func validateHost(host, name string) error {
	return validateNoWhitespace(host, name+" host")
}

// validateNoWhitespace rejects empty values and surrounding whitespace.
func validateNoWhitespace(value, field string) error {
	switch {
	case value == "":
		return fmt.Errorf("%s cannot be empty", field)
	case strings.TrimSpace(value) != value:
		return fmt.Errorf("%s cannot contain whitespace", field)
	}
	return nil
}

func validatePasswordStrength(password, name, environment string) error {
	if environment == EnvironmentProduction && len(password) < minProductionPasswordLen {
		return fmt.Errorf("%s password must be at least %d characters in production", name, minProductionPasswordLen)
	}
	return nil
}

func isSecureSSLMode(mode string) bool {
	return slices.Contains([]string{"require", "verify-ca", "verify-full"}, mode)
}

// parseAndValidateURL parses rawURL and requires one of schemes and a host.
func parseAndValidateURL(rawURL string, schemes []string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(schemes, parsed.Scheme) {
		return nil, fmt.Errorf("invalid scheme '%s', must be one of: %v", parsed.Scheme, schemes)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("host is required in URL")
	}
	return parsed, nil
}
