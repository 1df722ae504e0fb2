// Package fsutil holds small path helpers shared by the CLI, registry and
// stores.
package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// Other forms, such as "~alice/x", are returned unchanged.
func ExpandHome(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && !os.IsPathSeparator(rest[0])) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, rest), nil
}

// Resolve expands '~' and makes path absolute. Empty stays empty.
func Resolve(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	p, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	return abs, nil
}

// PathExists reports whether path exists. Errors other than not-exist count
// as existing so callers surface them on open.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
