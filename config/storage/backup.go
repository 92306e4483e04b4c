package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultBackupRetention is the default number of backups to keep
const DefaultBackupRetention = 3

// backupMarker separates the original name from the backup timestamp
const backupMarker = ".ryco-backup-"

// BackupManager keeps a bounded number of copies of a file
type BackupManager struct {
	MaxBackups int
	now        func() time.Time
}

// NewBackupManager creates a BackupManager
func NewBackupManager(maxBackups int) *BackupManager {
	if maxBackups <= 0 {
		maxBackups = DefaultBackupRetention
	}
	return &BackupManager{
		MaxBackups: maxBackups,
		now:        time.Now,
	}
}

// CreateBackup copies filePath to filePath.ryco-backup-<timestamp>-<pid>
func (bm *BackupManager) CreateBackup(filePath string) (string, error) {
	timestamp := bm.now().Format("20060102150405.000000000")
	backupPath := fmt.Sprintf("%s%s%s-%d", filePath, backupMarker, timestamp, os.Getpid())

	if err := copyFile(filePath, backupPath); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// ListBackups returns backups of filePath, oldest first
func (bm *BackupManager) ListBackups(filePath string) ([]string, error) {
	backupFiles, err := filepath.Glob(globEscape(filePath) + backupMarker + "*")
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	// timestamps are fixed width, so lexical order is chronological
	sort.Strings(backupFiles)
	return backupFiles, nil
}

// CleanupOldBackups removes all but the newest MaxBackups backups
func (bm *BackupManager) CleanupOldBackups(filePath string) error {
	backupFiles, err := bm.ListBackups(filePath)
	if err != nil {
		return err
	}

	numToRemove := len(backupFiles) - bm.MaxBackups
	if numToRemove <= 0 {
		return nil
	}

	for _, oldBackup := range backupFiles[:numToRemove] {
		if err := os.Remove(oldBackup); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", oldBackup, err)
		}
	}
	return nil
}

// RestoreLatest puts the newest backup back in place and returns its path
func (bm *BackupManager) RestoreLatest(filePath string) (string, error) {
	backupFiles, err := bm.ListBackups(filePath)
	if err != nil {
		return "", err
	}
	if len(backupFiles) == 0 {
		return "", fmt.Errorf("no backup files found for %s", filePath)
	}

	latest := backupFiles[len(backupFiles)-1]
	data, err := os.ReadFile(latest)
	if err != nil {
		return "", fmt.Errorf("failed to read backup: %w", err)
	}
	if err := AtomicFileUpdate(filePath, data, nil); err != nil {
		return "", fmt.Errorf("failed to restore from backup: %w", err)
	}
	if err := os.Remove(latest); err != nil {
		return "", fmt.Errorf("failed to remove restored backup: %w", err)
	}
	return latest, nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return err
	}

	dstFile, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(dstFile, srcFile); err != nil {
		dstFile.Close()
		return err
	}
	return dstFile.Close()
}

func globEscape(path string) string {
	r := strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`)
	return r.Replace(path)
}
