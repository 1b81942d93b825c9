package secrets

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.dat")

	if err := WriteFileAtomic(path, []byte("first"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(b) != "first" {
		t.Errorf("Expected 'first', got %q", b)
	}

	// Overwrite replaces the full content.
	if err := WriteFileAtomic(path, []byte("second"), 0o600); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	b, _ = os.ReadFile(path)
	if string(b) != "second" {
		t.Errorf("Expected 'second', got %q", b)
	}
}

func TestWriteFileAtomicLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.dat")

	for i := 0; i < 3; i++ {
		if err := WriteFileAtomic(path, []byte("data"), 0o600); err != nil {
			t.Fatalf("WriteFileAtomic failed: %v", err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected only the target file, found %v", names)
	}
}

func TestWriteFileAtomicFailedWriteKeepsOriginal(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	if os.Geteuid() == 0 {
		t.Skip("root bypasses directory permissions")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.dat")
	if err := os.WriteFile(path, []byte("original"), 0o600); err != nil {
		t.Fatal(err)
	}

	// A read-only directory stops the write before the rename can happen.
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0o700)

	if err := WriteFileAtomic(path, []byte("replacement"), 0o600); err == nil {
		t.Fatal("Expected the interrupted write to fail")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Original file unreadable after failed write: %v", err)
	}
	if string(b) != "original" {
		t.Errorf("Expected the original content to survive, got %q", b)
	}
}

func TestWriteFileAtomicRenameFailureLeavesDestinationIntact(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.dat")

	// A non-empty directory at the destination defeats both the rename and
	// the delete-then-rename fallback.
	if err := os.MkdirAll(filepath.Join(target, "nested"), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(target, "nested", "keep.txt"), []byte("original"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := WriteFileAtomic(target, []byte("replacement"), 0o600); err == nil {
		t.Fatal("Expected the rename to fail")
	}

	b, err := os.ReadFile(filepath.Join(target, "nested", "keep.txt"))
	if err != nil {
		t.Fatalf("Destination content unreadable after failed rename: %v", err)
	}
	if string(b) != "original" {
		t.Errorf("Expected the destination to survive, got %q", b)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("Expected the temp file to be cleaned up, found %v", names)
	}
}

func TestWriteFileAtomicPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "out.dat")

	if err := WriteFileAtomic(path, []byte("data"), 0o600); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}
}
