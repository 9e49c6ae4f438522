package logging

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{" Debug ", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("debug", &buf)

	logger.Info("kept info")
	logger.Debug("kept debug")
	logger.Log(context.Background(), LevelTrace, "dropped trace")

	out := buf.String()
	if !strings.Contains(out, "kept info") || !strings.Contains(out, "kept debug") {
		t.Errorf("expected info and debug lines, got:\n%s", out)
	}
	if strings.Contains(out, "dropped trace") {
		t.Errorf("trace line should be filtered at debug level:\n%s", out)
	}
}

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "sampler step", "step", 3)

	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("expected TRACE label, got: %s", out)
	}
	if !strings.Contains(out, "step=3") {
		t.Errorf("expected step attribute, got: %s", out)
	}
}

func TestOrDiscard(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("info", &buf)
	if OrDiscard(l) != l {
		t.Error("OrDiscard should return a non-nil logger unchanged")
	}
	// Must not panic.
	OrDiscard(nil).Info("nothing")
}

func TestFinite(t *testing.T) {
	if p := Finite(2.5); p == nil || *p != 2.5 {
		t.Errorf("Finite(2.5) = %v", p)
	}
	for _, v := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		if Finite(v) != nil {
			t.Errorf("Finite(%v) should be nil", v)
		}
	}
}

func TestNewTraceLogger_InfoLevelDisabled(t *testing.T) {
	dir := t.TempDir()
	for _, level := range []string{"info", "warn", ""} {
		if tl := NewTraceLogger(dir, level); tl != nil {
			t.Errorf("NewTraceLogger(%q) should be nil", level)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, TraceFileName)); !os.IsNotExist(err) {
		t.Error("no trace file should be created at info level")
	}
}

func readEvents(t *testing.T, path string) []StepEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open trace: %v", err)
	}
	defer f.Close()

	var events []StepEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev StepEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad trace line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestTraceLogger_Step(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	tl := NewTraceLogger(dir, "debug")
	if tl == nil {
		t.Fatal("expected trace logger at debug level")
	}

	stamp := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	tl.Step(StepEvent{Sampler: "rwm", Step: 1, Theta: []float64{0.5, 1}, Objective: Finite(3), Accepted: true, Time: stamp})
	tl.Step(StepEvent{Sampler: "rwm", Step: 2, Theta: []float64{0.5, 1}, Objective: Finite(math.Inf(1)), Halvings: 2, Exhausted: true})
	if tl.Count() != 2 {
		t.Errorf("Count = %d, want 2", tl.Count())
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	tl.Step(StepEvent{Step: 3})

	events := readEvents(t, filepath.Join(dir, TraceFileName))
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if !events[0].Time.Equal(stamp) || events[0].Objective == nil || *events[0].Objective != 3 || !events[0].Accepted {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Time.IsZero() {
		t.Error("second event should be stamped")
	}
	if events[1].Objective != nil || !events[1].Exhausted || events[1].Halvings != 2 {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestTraceLogger_Appends(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		tl := NewTraceLogger(dir, "trace")
		tl.Step(StepEvent{Sampler: "ula", Step: i + 1})
		tl.Close()
	}
	if n := len(readEvents(t, filepath.Join(dir, TraceFileName))); n != 2 {
		t.Errorf("events after reopen = %d, want 2", n)
	}
}

func TestTraceLogger_NilSafe(t *testing.T) {
	var tl *TraceLogger
	tl.Step(StepEvent{Step: 1})
	if tl.Count() != 0 {
		t.Error("nil Count should be 0")
	}
	if err := tl.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}

func TestTraceLogger_Concurrent(t *testing.T) {
	dir := t.TempDir()
	tl := NewTraceLogger(dir, "debug")
	defer tl.Close()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				tl.Step(StepEvent{Sampler: "rula", Step: g*100 + i})
			}
		}(g)
	}
	wg.Wait()

	if tl.Count() != 200 {
		t.Fatalf("Count = %d, want 200", tl.Count())
	}
	if n := len(readEvents(t, filepath.Join(dir, TraceFileName))); n != 200 {
		t.Errorf("lines = %d, want 200", n)
	}
}
