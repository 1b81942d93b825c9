package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	replaceRetries    = 3
	replaceRetryDelay = 50 * time.Millisecond
)

// WriteFileAtomic writes data to a sibling temp file, syncs it, then renames
// it over the destination. A reader never observes a partially written file;
// a crash mid-write leaves the previous valid file (or no file), never a
// truncated one.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err == nil {
		return nil
	}

	// On Windows the destination cannot be replaced while another process
	// holds it open. Delete-then-rename with a few short retries.
	var lastErr error
	for i := 0; i < replaceRetries; i++ {
		_ = os.Remove(path)
		if err := os.Rename(tmpName, path); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(replaceRetryDelay)
	}
	return fmt.Errorf("replace %s: %w", path, lastErr)
}
