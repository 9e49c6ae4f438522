// Package pathutil confines file paths that tool callers ask synthlik to
// write.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RedactPath shortens path to ".../<parent>/<base>" for error messages.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(clean))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(clean)
	}
	return ".../" + parent + "/" + filepath.Base(clean)
}

// Confine returns an error unless path lies inside one of roots. Symlinks
// in the existing part of either path are resolved first, so a link
// inside a root cannot point out of it. path itself need not exist.
func Confine(path string, roots ...string) error {
	switch {
	case path == "":
		return fmt.Errorf("path rejected: path is empty")
	case len(roots) == 0:
		return fmt.Errorf("path rejected: no allowed directories configured")
	case strings.ContainsRune(path, 0):
		return fmt.Errorf("path rejected: path contains null byte")
	}

	target, err := resolve(path)
	if err != nil {
		return fmt.Errorf("path rejected: %w", err)
	}
	for _, root := range roots {
		r, err := resolve(root)
		if err != nil {
			continue
		}
		if within(target, r) {
			return nil
		}
	}
	return fmt.Errorf("path rejected: %q is outside allowed directories", RedactPath(target))
}

// resolve makes path absolute and resolves symlinks in its deepest
// existing ancestor, keeping the missing tail as written.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	var tail []string
	for cur := abs; ; {
		if real, err := filepath.EvalSymlinks(cur); err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				real = filepath.Join(real, tail[i])
			}
			return real, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("cannot resolve %s", RedactPath(abs))
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator)))
}

// ExportDir is where tool calls may write exports, below storageDir.
func ExportDir(storageDir string) string {
	return filepath.Join(storageDir, "exports")
}

// ResolveExport joins a caller-supplied relative file name onto the export
// directory of storageDir and rejects names that escape it.
func ResolveExport(storageDir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("export name must be a relative file name, got %q", name)
	}
	dir := ExportDir(storageDir)
	path := filepath.Join(dir, name)
	if path == filepath.Clean(dir) {
		return "", fmt.Errorf("export name must name a file, got %q", name)
	}
	if err := Confine(path, dir); err != nil {
		return "", err
	}
	return path, nil
}
