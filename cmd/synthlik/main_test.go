package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/synthlik/internal/export"
)

// isolateHome sets HOME to a temp directory to avoid touching real ~/.synthlik/
// MUST be called for any test that creates stores
func isolateHome(t *testing.T, tmpDir string) {
	t.Helper()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	t.Setenv("HOME", tmpHome)
}

// writeTestConfig writes a small, fast config storing runs under tmpDir.
func writeTestConfig(t *testing.T, tmpDir string) string {
	t.Helper()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `
objective:
  n_sim: 100
  parallel: false
sampler:
  kind: rwm
  step_size: [0.3]
  n_steps: 10
storage:
  dir: ` + filepath.Join(tmpDir, "data") + `
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"version", "run", "likelihood", "runs", "config", "mcp-server"} {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	for _, flag := range []string{"json", "config"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing global --%s flag", flag)
		}
	}
}

func TestNewRunCmd(t *testing.T) {
	cmd := newRunCmd()
	if cmd.Use != "run" {
		t.Errorf("Use = %q, want %q", cmd.Use, "run")
	}
	for _, flag := range []string{"model", "objective", "sampler", "step-size", "steps", "nsim", "start", "resume", "arrow", "metrics-addr"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("missing --%s flag", flag)
		}
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("bad JSON %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestRunAndList(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)
	arrowPath := filepath.Join(tmpDir, "chain.arrow")

	out, err := execute(t, "--config", cfgPath, "--json", "run", "--start", "0,0", "--arrow", arrowPath)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var first struct {
		RunID   string `json:"run_id"`
		Summary struct {
			Steps int       `json:"steps"`
			Final []float64 `json:"final"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &first); err != nil {
		t.Fatalf("bad JSON %q: %v", out, err)
	}
	if first.RunID == "" || first.Summary.Steps != 10 || len(first.Summary.Final) != 2 {
		t.Errorf("unexpected run output: %+v", first)
	}

	f, err := os.Open(arrowPath)
	if err != nil {
		t.Fatalf("arrow file not written: %v", err)
	}
	theta, err := export.ReadArrowTheta(f)
	f.Close()
	if err != nil {
		t.Fatalf("ReadArrowTheta failed: %v", err)
	}
	if r, c := theta.Dims(); r != 10 || c != 2 {
		t.Errorf("arrow theta dims = %dx%d, want 10x2", r, c)
	}

	out, err = execute(t, "--config", cfgPath, "run", "--resume", first.RunID, "--steps", "5")
	if err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}
	if !strings.Contains(out, "continued from:  "+first.RunID) {
		t.Errorf("resume not reported:\n%s", out)
	}

	out, err = execute(t, "--config", cfgPath, "--json", "runs")
	if err != nil {
		t.Fatalf("runs failed: %v", err)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatalf("bad JSON %q: %v", out, err)
	}
	if list.Count != 2 {
		t.Errorf("count = %d, want 2", list.Count)
	}

	out, err = execute(t, "--config", cfgPath, "runs", "show", first.RunID)
	if err != nil {
		t.Fatalf("runs show failed: %v", err)
	}
	if !strings.Contains(out, "sampler:   rwm") || !strings.Contains(out, "counter 10") {
		t.Errorf("unexpected show output:\n%s", out)
	}

	out, err = execute(t, "--config", cfgPath, "runs", "graph")
	if err != nil {
		t.Fatalf("runs graph failed: %v", err)
	}
	if !strings.Contains(out, fmt.Sprintf("%q -> ", first.RunID)) {
		t.Errorf("lineage edge missing:\n%s", out)
	}
}

func TestRunInvalidFlags(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	if _, err := execute(t, "--config", cfgPath, "run", "--sampler", "hmc"); err == nil {
		t.Error("expected error for unknown sampler")
	}
	if _, err := execute(t, "--config", cfgPath, "run", "--resume", "missing"); err == nil {
		t.Error("expected error resuming unknown run")
	}
}

func TestLikelihoodJSON(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	out, err := execute(t, "--config", cfgPath, "--json", "likelihood", "--theta", "1,1", "--gradient")
	if err != nil {
		t.Fatalf("likelihood failed: %v", err)
	}
	var got struct {
		Finite    bool      `json:"finite"`
		Objective *float64  `json:"objective"`
		Gradient  []float64 `json:"gradient"`
		Hessian   [][]float64
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("bad JSON %q: %v", out, err)
	}
	if !got.Finite || got.Objective == nil {
		t.Errorf("expected finite objective: %s", out)
	}
	if len(got.Gradient) != 2 {
		t.Errorf("gradient = %v, want 2 values", got.Gradient)
	}
	if got.Hessian != nil {
		t.Errorf("hessian returned without --hessian")
	}

	if _, err := execute(t, "--config", cfgPath, "likelihood"); err == nil {
		t.Error("expected error without --theta")
	}
}

func TestConfigGet(t *testing.T) {
	tmpDir := t.TempDir()
	isolateHome(t, tmpDir)
	cfgPath := writeTestConfig(t, tmpDir)

	out, err := execute(t, "--config", cfgPath, "config", "get", "sampler.kind")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if strings.TrimSpace(out) != "sampler.kind = rwm" {
		t.Errorf("config get = %q", out)
	}

	out, err = execute(t, "--config", cfgPath, "config", "get", "no.such.key")
	if err != nil {
		t.Fatalf("config get failed: %v", err)
	}
	if !strings.Contains(out, "Unknown configuration key") {
		t.Errorf("unexpected output for unknown key: %q", out)
	}

	out, err = execute(t, "--config", cfgPath, "config", "list")
	if err != nil {
		t.Fatalf("config list failed: %v", err)
	}
	if !strings.Contains(out, "objective.n_sim:") || !strings.Contains(out, "100") {
		t.Errorf("config list missing n_sim:\n%s", out)
	}
}

func TestFormatVec(t *testing.T) {
	tests := []struct {
		in   []float64
		want string
	}{
		{nil, "(none)"},
		{[]float64{1}, "[1]"},
		{[]float64{1.5, -2}, "[1.5 -2]"},
	}
	for _, tt := range tests {
		if got := formatVec(tt.in); got != tt.want {
			t.Errorf("formatVec(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
