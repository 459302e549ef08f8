// Package security guards the file names the canopy tools write to.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxNameLen caps sanitised file names.
const maxNameLen = 128

// WithinDirectory reports an error when filePath resolves outside dir.
// Symlinks in dir and in the existing part of filePath are resolved first,
// so a link inside dir cannot redirect a write elsewhere.
func WithinDirectory(filePath, dir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory path: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalDir, resolveExisting(absPath))
	if err != nil {
		return fmt.Errorf("path is outside %s: %w", dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s escapes %s", filePath, dir)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of p.
func resolveExisting(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	for check := p; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return p
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rest, _ := filepath.Rel(parent, p)
			return filepath.Join(resolved, rest)
		}
		check = parent
	}
}

// SanitizeFilename maps a layer or zone name to a safe file name. Runs of
// characters other than ASCII letters, digits, dot, underscore and dash
// collapse to one underscore; leading and trailing dots and underscores are
// trimmed. An empty result becomes "unnamed".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unnamed"
	}
	return out
}

// OutputPath joins a sanitised name and extension onto dir and checks that
// the result stays inside dir.
func OutputPath(dir, name, ext string) (string, error) {
	p := filepath.Join(dir, SanitizeFilename(name)+ext)
	if err := WithinDirectory(p, dir); err != nil {
		return "", err
	}
	return p, nil
}
