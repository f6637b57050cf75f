// Package security validates paths that arrive from configuration files and
// HTTP requests before they touch the filesystem.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when a path resolves outside its base directory.
var ErrPathTraversal = errors.New("path traversal detected")

// ErrInvalidName is returned for app names that are not a single path element.
var ErrInvalidName = errors.New("invalid name")

// ValidatePathWithinDirectory checks that filePath stays within safeDir once
// "..", relative components and symlinks are resolved. A path that does not
// exist yet is checked through its nearest existing parent, so a symlinked
// parent directory cannot be used to escape.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := canonicalise(absPath)
	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	relPath, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPathTraversal, filePath, err)
	}
	if relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || filepath.IsAbs(relPath) {
		return fmt.Errorf("%w: %s escapes %s", ErrPathTraversal, filePath, safeDir)
	}
	return nil
}

// canonicalise resolves symlinks in absPath, or in its deepest existing
// ancestor when absPath itself does not exist.
func canonicalise(absPath string) string {
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		return resolved
	}
	for check := absPath; ; {
		parent := filepath.Dir(check)
		if parent == check {
			return absPath
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			rel, _ := filepath.Rel(parent, absPath)
			return filepath.Join(resolved, rel)
		}
		check = parent
	}
}

// ResolveWithin joins name onto baseDir and validates the result. Absolute
// names are accepted only when they already lie inside baseDir.
func ResolveWithin(baseDir, name string) (string, error) {
	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, name)
	}
	if err := ValidatePathWithinDirectory(path, baseDir); err != nil {
		return "", err
	}
	return path, nil
}

// ValidateAppName accepts a single directory name made of ASCII letters,
// digits, dot, underscore or dash, not starting with a dot.
func ValidateAppName(name string) error {
	if name == "" || len(name) > 128 || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.' || r == '_' || r == '-':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidName, name)
		}
	}
	return nil
}
