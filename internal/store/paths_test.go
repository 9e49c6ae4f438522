package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDir(t *testing.T) {
	got, err := DefaultDir()
	if err != nil {
		t.Fatalf("DefaultDir() error = %v", err)
	}
	if !strings.HasSuffix(got, ".synthlik") {
		t.Errorf("DefaultDir() = %v, should end with .synthlik", got)
	}
	if !filepath.IsAbs(got) {
		t.Errorf("DefaultDir() = %v, should be absolute", got)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("EnsureDir() did not create %s", dir)
	}
}
