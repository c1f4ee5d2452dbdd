// Package audit records the query audit trail and security-relevant events.
// Records are structured JSON for ingestion by log pipelines and SIEM systems.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Logger appends query audit records to a JSON-lines file. Every record
// carries an epoch-seconds timestamp plus the caller's payload, one line per
// record so downstream tooling can tail the file.
type Logger struct {
	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewLogger creates the audit trail writer, creating parent directories of
// path as needed. The file itself is created lazily on first write.
func NewLogger(path string, logger *zap.Logger) (*Logger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit log directory: %w", err)
		}
	}
	return &Logger{path: path, logger: logger.Named("audit")}, nil
}

// Write appends one JSON line for the given payload and mirrors it to the
// structured log. Concurrent writers each produce a whole line.
func (l *Logger) Write(payload map[string]any) error {
	entry := make(map[string]any, len(payload)+1)
	entry["timestamp"] = time.Now().Unix()
	for k, v := range payload {
		entry[k] = v
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("write audit entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}

	l.logger.Info("audit event recorded", zap.Any("entry", entry))
	return nil
}
