package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags injection
	// patterns in a submitted question.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventRateLimitExceeded is logged when a caller is throttled.
	EventRateLimitExceeded SecurityEventType = "rate_limit_exceeded"
)

// SecurityEvent represents an auditable security event with all relevant
// context for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	RequestID string            `json:"request_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details,omitempty"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged question.
type SQLInjectionDetails struct {
	Query       string `json:"query"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger
// namespace ("security_audit") for easy filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a question that libinjection flagged.
// Flagged questions still proceed through the pipeline, where the generated
// SQL is parsed and checked; this event is the only side effect.
func (a *SecurityAuditor) LogInjectionAttempt(requestID, userID, clientIP string, details SQLInjectionDetails) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventSQLInjectionAttempt,
		RequestID: requestID,
		UserID:    userID,
		ClientIP:  clientIP,
		Details:   details,
		Severity:  "warning",
	}

	// Marshaling these known field types cannot fail.
	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("SQL injection patterns detected in question",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("user_id", userID),
		zap.String("client_ip", clientIP),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "warning"),
	)
}

// LogRateLimitExceeded records a request rejected by the per-user rate limiter.
func (a *SecurityAuditor) LogRateLimitExceeded(requestID, userID, clientIP string) {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: EventRateLimitExceeded,
		RequestID: requestID,
		UserID:    userID,
		ClientIP:  clientIP,
		Severity:  "warning",
	}

	eventJSON, _ := json.Marshal(event)

	a.logger.Warn("Request rate limit exceeded",
		zap.String("event_json", string(eventJSON)),
		zap.String("request_id", requestID),
		zap.String("user_id", userID),
		zap.String("client_ip", clientIP),
		zap.String("severity", "warning"),
	)
}
