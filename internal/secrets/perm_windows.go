//go:build windows

package secrets

import (
	"context"

	"kis-trader/internal/logger"

	"golang.org/x/sys/windows"
)

// restrictToOwner marks the file hidden. POSIX mode bits do not apply on
// Windows and a full ACL rewrite needs elevated rights, so hiding the file
// is the fallback; the weaker protection is logged once.
func restrictToOwner(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	if err := windows.SetFileAttributes(p, windows.FILE_ATTRIBUTE_HIDDEN); err != nil {
		return err
	}
	logger.Warn(context.Background(), "Key file protected with hidden attribute only; consider tightening the directory ACL", "path", path)
	return nil
}
