// Package storage writes user files safely: atomic replacement with optional
// rolling backups.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicFileUpdate replaces filePath with content through a temp file and
// rename, keeping the existing file mode. When bm is non-nil a backup of the
// previous content is taken first and old backups are pruned afterwards.
func AtomicFileUpdate(filePath string, content []byte, bm *BackupManager) error {
	mode := os.FileMode(0600)
	if info, err := os.Stat(filePath); err == nil {
		mode = info.Mode().Perm()
		if bm != nil {
			if _, err := bm.CreateBackup(filePath); err != nil {
				return fmt.Errorf("failed to create backup file: %w", err)
			}
		}
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write to temporary file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temporary file: %w", err)
	}
	tmpFile.Close()

	if err := os.Chmod(tmpFile.Name(), mode); err != nil {
		return fmt.Errorf("failed to set permissions on temporary file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), filePath); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	if bm != nil {
		// the update itself succeeded; a failed prune only leaves extra backups
		_ = bm.CleanupOldBackups(filePath)
	}
	return nil
}
