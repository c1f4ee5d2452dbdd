// Package logging scrubs credentials out of values headed for log fields.
// DSNs, driver and LLM provider errors, and user questions all pass through
// here before they reach zap.
package logging

import (
	"regexp"
)

const (
	// MaxQueryLogLength bounds how much of a user question or SQL statement
	// a single log field may carry.
	MaxQueryLogLength = 100
	// RedactedText replaces every matched credential.
	RedactedText = "[REDACTED]"
)

var (
	// password=..., pwd=..., pass=... values in keyword/value DSNs.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens of three dot-separated base64 segments.
	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	// api_key=... style key/value pairs of plausible key length.
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// Bare OpenAI and Anthropic secret keys (sk-..., sk-ant-...), the form
	// they take when a provider error echoes the request credentials.
	providerKeyPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}`)

	// user:password@host credentials inside URL-form DSNs.
	connStringPattern = regexp.MustCompile(`://[^:]+:[^@]+@[^/\s]+`)
)

// SanitizeConnectionString redacts the credentials in a postgres or redis DSN
// so the remainder can be logged.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeError renders err for logging with credentials redacted. Database
// drivers echo the DSN back in connect failures and LLM providers echo the
// API key in auth failures, so both families of pattern run here.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = jwtPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = providerKeyPattern.ReplaceAllString(sanitized, RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)

	return sanitized
}

// SanitizeQuery bounds a user question or SQL statement to MaxQueryLogLength
// and redacts credential-shaped fragments pasted into it.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := query
	if len(sanitized) > MaxQueryLogLength {
		sanitized = sanitized[:MaxQueryLogLength] + "..."
	}

	sanitized = passwordPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = providerKeyPattern.ReplaceAllString(sanitized, RedactedText)

	return sanitized
}

// TruncateString caps s at maxLen bytes, marking the cut with an ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
