package mcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/synthlik/internal/pathutil"
)

// AuditFileName is the audit log written inside the storage directory.
const AuditFileName = "audit.jsonl"

// AuditEntry represents a single audit log entry for a tool invocation.
// It records what was asked for, never the numeric payloads.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	Params     map[string]string `json:"params,omitempty"` // sanitized metadata only
}

// AuditLogger appends entries to a JSONL file. It is safe for concurrent
// use. A nil AuditLogger is safe to use; all methods are no-ops on nil
// receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewAuditLogger opens dir/audit.jsonl for append. If the file cannot be
// created, a warning is printed to stderr and nil is returned.
func NewAuditLogger(dir string) *AuditLogger {
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", pathutil.RedactPath(dir), err)
		return nil
	}

	path := filepath.Join(dir, AuditFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", pathutil.RedactPath(path), err)
		return nil
	}
	return &AuditLogger{file: f}
}

// Log appends entry as one JSON line. Safe to call on nil receiver.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the log file. Safe to call on nil receiver.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams extracts loggable metadata from tool parameters.
//
// Parameters are classified into three categories:
//   - Safe-value params: both key and value are logged (e.g. "model", "n_steps")
//   - Size-only params: vectors are logged by length only
//   - Unknown params: not logged at all
//
// A "_param_count" key is always included.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValueParams := map[string]bool{
		"model":     true,
		"objective": true,
		"sampler":   true,
		"n_sim":     true,
		"n_steps":   true,
		"seed":      true,
		"limit":     true,
		"gradient":  true,
		"hessian":   true,
		"resume":    true,
		"burn_in":   true,
		"export":    true,
	}
	sizeOnlyParams := map[string]bool{
		"theta":     true,
		"observed":  true,
		"start":     true,
		"step_size": true,
	}

	result := make(map[string]string)
	for key, val := range params {
		switch {
		case safeValueParams[key]:
			result[key] = fmt.Sprintf("%v", val)
		case sizeOnlyParams[key]:
			if v, ok := val.([]float64); ok {
				result[key] = fmt.Sprintf("len=%d", len(v))
			}
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", len(params))

	return result
}

// auditTool logs a tool invocation to the audit log.
func (s *Server) auditTool(toolName string, start time.Time, err error, runID string, params map[string]string) {
	status := "success"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		RunID:      runID,
		Params:     params,
	})
}
