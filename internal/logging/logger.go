// Package logging builds synthlik's operational logger and the optional
// per-step sampler trace.
//
// Operational output is a leveled slog text handler on stderr. The trace is
// a JSONL file (<dir>/iterations.jsonl) with one StepEvent per sampler
// iteration, written only at debug or trace level.
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace sits below Debug and logs every sampler step.
const LevelTrace = slog.LevelDebug - 4

// TraceFileName is the file written by TraceLogger inside its directory.
const TraceFileName = "iterations.jsonl"

// ParseLevel maps "trace", "debug", "info", "warn" or "error"
// (case-insensitive) to a slog.Level. Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger writing to w at the named level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: labelTrace,
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// labelTrace prints LevelTrace as TRACE instead of DEBUG-4.
func labelTrace(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
		a.Value = slog.StringValue("TRACE")
	}
	return a
}

// OrDiscard returns l, or a logger that drops everything when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// StepEvent is one line of the iteration trace.
type StepEvent struct {
	Time     time.Time `json:"time"`
	Sampler  string    `json:"sampler"`
	Step     int       `json:"step"`
	Theta    []float64 `json:"theta"`
	Proposed []float64 `json:"proposed,omitempty"`
	// Objective is nil when the objective is not finite; JSON has no Inf.
	Objective *float64 `json:"objective"`
	Accepted  bool     `json:"accepted"`
	Halvings  int      `json:"halvings"`
	Exhausted bool     `json:"exhausted,omitempty"`
}

// Finite returns &v, or nil when v is NaN or infinite.
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// TraceLogger appends StepEvents to a JSONL file. It is safe for
// concurrent use, and a nil *TraceLogger discards everything.
type TraceLogger struct {
	mu    sync.Mutex
	file  *os.File
	enc   *json.Encoder
	count int
}

// NewTraceLogger opens dir/iterations.jsonl for append when level is debug
// or trace. At other levels, or when the file cannot be opened, it returns
// nil.
func NewTraceLogger(dir string, level string) *TraceLogger {
	if ParseLevel(level) > slog.LevelDebug {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, TraceFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &TraceLogger{file: f, enc: json.NewEncoder(f)}
}

// Step writes ev as one line, stamping Time when it is zero.
func (tl *TraceLogger) Step(ev StepEvent) {
	if tl == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return
	}
	if err := tl.enc.Encode(ev); err == nil {
		tl.count++
	}
}

// Count reports how many events have been written.
func (tl *TraceLogger) Count() int {
	if tl == nil {
		return 0
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	return tl.count
}

// Close closes the file. Later Steps are dropped.
func (tl *TraceLogger) Close() error {
	if tl == nil {
		return nil
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.file == nil {
		return nil
	}
	err := tl.file.Close()
	tl.file = nil
	return err
}
