package domain

import (
	"fmt"
	"strings"
)

// ValidateInstanceName enforces the naming format shared by instance IDs
// and display names: lowercase letters, digits and single hyphens, no
// leading or trailing hyphen. Names become directory components and
// registry keys, so the format is strict.
func ValidateInstanceName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: name cannot be empty", ErrConfig)
	case strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-"):
		return fmt.Errorf("%w: name %q cannot start or end with a hyphen", ErrConfig, name)
	case strings.Contains(name, "--"):
		return fmt.Errorf("%w: name %q cannot contain consecutive hyphens", ErrConfig, name)
	}

	for _, c := range name {
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' {
			continue
		}
		reason := fmt.Sprintf("character %q is not allowed", c)
		switch {
		case c >= 'A' && c <= 'Z':
			reason = "uppercase letters are not allowed, use lowercase"
		case c == ' ':
			reason = "spaces are not allowed, use hyphens instead"
		case c == '_':
			reason = "underscores are not allowed, use hyphens instead"
		}
		return fmt.Errorf("%w: name %q invalid: %s", ErrConfig, name, reason)
	}
	return nil
}

// SanitizeInstanceName lowercases, maps spaces and underscores to hyphens
// and drops everything else, collapsing hyphen runs.
func SanitizeInstanceName(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		switch {
		case c == ' ' || c == '_' || c == '-':
			b.WriteByte('-')
		case (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9'):
			b.WriteRune(c)
		}
	}

	parts := make([]string, 0)
	for _, p := range strings.Split(b.String(), "-") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "-")
}
