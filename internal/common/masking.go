package common

import (
	"regexp"
	"strings"
)

const maskedValue = "***MASKED***"

// SensitivePattern detects and masks one kind of secret.
type SensitivePattern struct {
	Name        string
	Regex       *regexp.Regexp
	Replacement string
	Keys        []string // attribute keys masked wholesale (case-insensitive)
}

// DefaultSensitivePatterns covers credentials that show up in migration logs:
// userinfo in mongodb/postgres URIs and password-like key/value pairs.
var DefaultSensitivePatterns = []SensitivePattern{
	{
		Name:        "uri_userinfo",
		Regex:       regexp.MustCompile(`((?:mongodb(?:\+srv)?|postgres(?:ql)?)://[^:/@\s]+):[^@\s]+@`),
		Replacement: "${1}:" + maskedValue + "@",
	},
	{
		Name:        "password",
		Regex:       regexp.MustCompile(`(?i)\b(password|passwd|pwd)=([^&\s]+)`),
		Replacement: "${1}=" + maskedValue,
		Keys:        []string{"password", "passwd", "pwd"},
	},
	{
		Name:        "secret",
		Regex:       regexp.MustCompile(`(?i)\b(secret|token)=([^&\s]+)`),
		Replacement: "${1}=" + maskedValue,
		Keys:        []string{"secret", "token"},
	},
}

// Masker handles masking of sensitive information in logs
type Masker struct {
	patterns []SensitivePattern
	enabled  bool
}

// NewMasker creates a new masker with default patterns
func NewMasker() *Masker {
	return &Masker{patterns: DefaultSensitivePatterns, enabled: true}
}

// SetEnabled enables or disables masking
func (m *Masker) SetEnabled(enabled bool) {
	m.enabled = enabled
}

// IsEnabled returns whether masking is enabled
func (m *Masker) IsEnabled() bool {
	return m.enabled
}

// MaskString masks sensitive information in a string
func (m *Masker) MaskString(input string) string {
	if !m.enabled {
		return input
	}
	out := input
	for _, p := range m.patterns {
		out = p.Regex.ReplaceAllString(out, p.Replacement)
	}
	return out
}

// MaskValue masks a value by key first, then by content.
func (m *Masker) MaskValue(key string, value interface{}) interface{} {
	if !m.enabled {
		return value
	}
	lowerKey := strings.ToLower(key)
	for _, p := range m.patterns {
		for _, k := range p.Keys {
			if lowerKey == k {
				return maskedValue
			}
		}
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	return m.MaskString(s)
}

var globalMasker = NewMasker()

// MaskSensitiveData masks sensitive data using the global masker
func MaskSensitiveData(input string) string {
	return globalMasker.MaskString(input)
}

// EnableMasking enables/disables global masking
func EnableMasking(enabled bool) {
	globalMasker.SetEnabled(enabled)
}
