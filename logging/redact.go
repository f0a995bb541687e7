package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces secrets in log output.
const RedactedPlaceholder = "[REDACTED]"

// Model downloads may carry Hugging Face or GitHub tokens, either in headers
// or embedded in URLs.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhf_[a-zA-Z0-9]{20,}`),
	regexp.MustCompile(`\bghp_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`\bgithub_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._-]{20,}`),
	regexp.MustCompile(`(?i)(token|password|secret|api_key)\s*[:=]\s*[^\s,;&]{8,}`),
	regexp.MustCompile(`://[^/\s:@]+:[^/\s@]+@`),
}

// sensitiveFieldNames are substrings of field or variable names whose values
// are always redacted.
var sensitiveFieldNames = []string{
	"TOKEN",
	"PASSWORD",
	"SECRET",
	"API_KEY",
	"AUTHORIZATION",
}

// RedactSensitiveData replaces every detected secret in value.
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}
	result := value
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(result) {
			if strings.HasPrefix(pattern.String(), "://") {
				result = pattern.ReplaceAllString(result, "://"+RedactedPlaceholder+"@")
				continue
			}
			result = pattern.ReplaceAllString(result, RedactedPlaceholder)
		}
	}
	return result
}

// IsSensitiveField reports whether a field name always holds a secret.
func IsSensitiveField(fieldName string) bool {
	upper := strings.ToUpper(fieldName)
	for _, name := range sensitiveFieldNames {
		if strings.Contains(upper, name) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether value matches any secret pattern.
func ContainsSensitiveData(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}
