package pathutil

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestConfine(t *testing.T) {
	allowedDir := t.TempDir()
	otherDir := t.TempDir()

	tests := []struct {
		name        string
		path        string
		allowedDirs []string
		errContains string
	}{
		{"inside allowed dir", filepath.Join(allowedDir, "chain.arrow"), []string{allowedDir}, ""},
		{"nested not yet created", filepath.Join(allowedDir, "a", "b", "chain.arrow"), []string{allowedDir}, ""},
		{"the allowed dir itself", allowedDir, []string{allowedDir}, ""},
		{"dot-dot escape", filepath.Join(allowedDir, "..", "etc", "passwd"), []string{allowedDir}, "outside allowed directories"},
		{"other dir", filepath.Join(otherDir, "chain.arrow"), []string{allowedDir}, "outside allowed directories"},
		{"prefix sibling", allowedDir + "x/chain.arrow", []string{allowedDir}, "outside allowed directories"},
		{"second allowed dir", filepath.Join(otherDir, "chain.arrow"), []string{allowedDir, otherDir}, ""},
		{"empty path", "", []string{allowedDir}, "path is empty"},
		{"no allowed dirs", filepath.Join(allowedDir, "x"), nil, "no allowed directories"},
		{"null byte", filepath.Join(allowedDir, "x\x00y"), []string{allowedDir}, "null byte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Confine(tt.path, tt.allowedDirs...)
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Confine(%q) unexpected error: %v", tt.path, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Confine(%q) error = %v, want containing %q", tt.path, err, tt.errContains)
			}
		})
	}
}

func TestConfine_SymlinkOutsideAllowedDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	allowedDir := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(allowedDir, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	err := Confine(filepath.Join(link, "chain.arrow"), allowedDir)
	if err == nil {
		t.Fatal("expected symlink escape to be rejected")
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/home/user/.synthlik/synthlik.db", ".../.synthlik/synthlik.db"},
		{"synthlik.db", "synthlik.db"},
		{"/synthlik.db", "synthlik.db"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.path); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestResolveExport(t *testing.T) {
	storage := t.TempDir()

	got, err := ResolveExport(storage, "run1.arrow")
	if err != nil {
		t.Fatalf("ResolveExport failed: %v", err)
	}
	if want := filepath.Join(storage, "exports", "run1.arrow"); got != want {
		t.Errorf("ResolveExport = %q, want %q", got, want)
	}

	got, err = ResolveExport(storage, filepath.Join("sub", "run1.arrow"))
	if err != nil {
		t.Fatalf("nested ResolveExport failed: %v", err)
	}
	if !strings.HasPrefix(got, ExportDir(storage)) {
		t.Errorf("nested export %q outside %q", got, ExportDir(storage))
	}

	for _, bad := range []string{"", "/tmp/x.arrow", "../synthlik.db", "a/../../x.arrow", "."} {
		if _, err := ResolveExport(storage, bad); err == nil {
			t.Errorf("ResolveExport(%q) should fail", bad)
		}
	}
}
