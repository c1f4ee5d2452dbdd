// Package security screens incoming questions before they enter the pipeline.
package security

import (
	libinjection "github.com/corazawaf/libinjection-go"

	"github.com/isaqe-io/isaqe-engine/pkg/audit"
)

// Screener checks submitted natural-language questions for SQL injection
// patterns. Questions legitimately mention table names and SQL-ish phrasing,
// so a hit is recorded for review but never blocks the request; the generated
// SQL is parsed and checked separately before execution.
type Screener struct {
	auditor *audit.SecurityAuditor
}

// NewScreener creates a screener that reports hits to the given auditor.
func NewScreener(auditor *audit.SecurityAuditor) *Screener {
	return &Screener{auditor: auditor}
}

// Screen runs libinjection over the question text and records a security
// event when injection patterns are found. Returns true when flagged.
func (s *Screener) Screen(requestID, userID, clientIP, query string) bool {
	isSQLi, fingerprint := libinjection.IsSQLi(query)
	if !isSQLi {
		return false
	}

	s.auditor.LogInjectionAttempt(requestID, userID, clientIP, audit.SQLInjectionDetails{
		Query:       query,
		Fingerprint: string(fingerprint),
	})
	return true
}
