package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrUnsafeRoot is returned when the project root is a directory agents must
// never be given write access to.
var ErrUnsafeRoot = errors.New("unsafe project root")

// unsafeRoots are directories that may never anchor a sandbox. The user's home
// directory is added at check time.
var unsafeRoots = []string{
	"/",
	"/bin",
	"/boot",
	"/dev",
	"/etc",
	"/lib",
	"/opt",
	"/proc",
	"/sbin",
	"/sys",
	"/tmp",
	"/usr",
	"/var",
}

// CheckProjectRoot refuses roots that would expose the whole machine or the
// user's home directory to agent writes. Subdirectories of these are fine.
// Restricted (read-only) sessions skip this check at the call site.
func CheckProjectRoot(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid project root: %w", err)
	}
	abs = filepath.Clean(abs)

	for _, root := range unsafeRoots {
		if abs == root {
			return fmt.Errorf("%w: %s", ErrUnsafeRoot, abs)
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		if abs == filepath.Clean(home) {
			return fmt.Errorf("%w: %s is your home directory", ErrUnsafeRoot, abs)
		}
	}

	return nil
}
