package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType classifies what went wrong with an LLM call.
type ErrorType string

const (
	ErrorTypeNone     ErrorType = ""
	ErrorTypeEndpoint ErrorType = "endpoint"
	ErrorTypeAuth     ErrorType = "auth"
	ErrorTypeModel    ErrorType = "model"
	ErrorTypeFormat   ErrorType = "format"
	ErrorTypeUnknown  ErrorType = "unknown"
)

// Error is a classified LLM failure. Retryable steers the retry package:
// a declared classification beats any message-pattern heuristic downstream.
type Error struct {
	Type       ErrorType
	Message    string
	Retryable  bool
	Cause      error
	StatusCode int
	Model      string
}

func (e *Error) Error() string {
	parts := []string{string(e.Type)}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, "model="+e.Model)
	}
	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable satisfies the retry package's retryable-error contract.
func (e *Error) IsRetryable() bool { return e.Retryable }

// NewError builds a classified error around its cause.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{Type: errType, Message: message, Retryable: retryable, Cause: cause}
}

// classifyRule maps provider error text onto a classification. Rules run in
// order and the first match wins, so specific failures (auth, missing model)
// must sit above the generic transport buckets.
type classifyRule struct {
	matches   func(raw, lower string) bool
	errType   ErrorType
	message   string
	retryable bool
}

var classifyRules = []classifyRule{
	{
		matches: func(raw, lower string) bool {
			return strings.Contains(raw, "401") ||
				strings.Contains(lower, "unauthorized") ||
				strings.Contains(lower, "invalid api key")
		},
		errType: ErrorTypeAuth, message: "authentication failed", retryable: false,
	},
	{
		matches: func(_, lower string) bool {
			return strings.Contains(lower, "model") &&
				(strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist"))
		},
		errType: ErrorTypeModel, message: "model not found", retryable: false,
	},
	{
		matches: func(raw, _ string) bool {
			return strings.Contains(raw, "404")
		},
		errType: ErrorTypeEndpoint, message: "endpoint not found", retryable: false,
	},
	{
		matches: func(_, lower string) bool {
			return strings.Contains(lower, "connection refused") ||
				strings.Contains(lower, "no such host")
		},
		errType: ErrorTypeEndpoint, message: "connection failed", retryable: true,
	},
	{
		matches: func(_, lower string) bool {
			return strings.Contains(lower, "timeout") ||
				strings.Contains(lower, "deadline exceeded") ||
				strings.Contains(lower, "context canceled")
		},
		errType: ErrorTypeEndpoint, message: "request timeout", retryable: true,
	},
	{
		matches: func(raw, lower string) bool {
			return strings.Contains(raw, "429") || strings.Contains(lower, "rate limit")
		},
		errType: ErrorTypeUnknown, message: "rate limited", retryable: true,
	},
	{
		matches: func(raw, _ string) bool {
			for _, code := range []string{"500", "502", "503", "504"} {
				if strings.Contains(raw, code) {
					return true
				}
			}
			return false
		},
		errType: ErrorTypeEndpoint, message: "server error", retryable: true,
	},
}

// ClassifyError turns an arbitrary provider error into a classified *Error.
// Errors that already carry a classification pass through unchanged.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	raw := err.Error()
	lower := strings.ToLower(raw)

	for _, rule := range classifyRules {
		if rule.matches(raw, lower) {
			out := NewError(rule.errType, rule.message, rule.retryable, err)
			out.StatusCode = extractStatusCode(raw)
			return out
		}
	}

	out := NewError(ErrorTypeUnknown, "llm error", false, err)
	out.StatusCode = extractStatusCode(raw)
	return out
}

// extractStatusCode scans provider error text for a known HTTP status.
func extractStatusCode(raw string) int {
	for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504} {
		if strings.Contains(raw, fmt.Sprintf("%d", code)) {
			return code
		}
	}
	return 0
}

// IsRetryable reports whether err carries a retryable classification.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the classification from err, defaulting to unknown.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}
