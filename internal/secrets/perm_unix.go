//go:build !windows

package secrets

import "os"

// restrictToOwner removes group/other access from the file.
func restrictToOwner(path string) error {
	return os.Chmod(path, 0o600)
}
