package util

import "strings"

// TrimAndLower trims whitespace and converts to lowercase
func TrimAndLower(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TrimEmptyCheck trims whitespace and checks if non-empty
func TrimEmptyCheck(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	return trimmed, trimmed != ""
}

// TrimWithDefault trims whitespace and returns default if empty
func TrimWithDefault(s, defaultValue string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}

// PrefixedOr returns explicit when set, prefix+suffix when a prefix is set,
// and fallback otherwise.
func PrefixedOr(explicit, prefix, suffix, fallback string) string {
	if v, ok := TrimEmptyCheck(explicit); ok {
		return v
	}
	if p, ok := TrimEmptyCheck(prefix); ok {
		return p + suffix
	}
	return fallback
}
