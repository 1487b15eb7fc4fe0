package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// validateOutputPath accepts paths under the working directory or the temp
// directory, after resolving symlinks in the deepest existing parent.
func validateOutputPath(path string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	resolved, err := canonical(path)
	if err != nil {
		return err
	}
	for _, dir := range []string{cwd, os.TempDir()} {
		root, err := canonical(dir)
		if err != nil {
			continue
		}
		if within(resolved, root) {
			return nil
		}
	}
	return fmt.Errorf("output path %s must be within %s or %s", path, cwd, os.TempDir())
}

// canonical returns the absolute path with symlinks resolved. For a path
// that does not exist yet, the nearest existing parent is resolved and the
// remainder appended.
func canonical(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	rest := ""
	for dir := abs; ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(dir), rest)
	}
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
