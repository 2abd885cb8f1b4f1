package fixer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// backupTimeLayout gives second-granularity names; two backups of the same
// file within one second share a name and the later one wins.
const backupTimeLayout = "20060102_150405"

// BackupStore keeps pre-write copies in a hidden directory next to each
// target file: <dir>/<name>/<file>.<YYYYMMDD_HHMMSS>.bak.
type BackupStore struct {
	name string
	now  func() time.Time
}

// NewBackupStore returns a store using the given directory name. A nil clock
// uses time.Now.
func NewBackupStore(name string, now func() time.Time) *BackupStore {
	if now == nil {
		now = time.Now
	}
	return &BackupStore{name: name, now: now}
}

// Dir returns the backup directory for target.
func (s *BackupStore) Dir(target string) string {
	return filepath.Join(filepath.Dir(target), s.name)
}

// PathFor returns the backup path target would get at time t.
func (s *BackupStore) PathFor(target string, t time.Time) string {
	return filepath.Join(s.Dir(target), fmt.Sprintf("%s.%s.bak", filepath.Base(target), t.Format(backupTimeLayout)))
}

// Create copies target into the backup directory, preserving its mode and
// modification time, and returns the backup path.
func (s *BackupStore) Create(target string) (string, error) {
	if err := os.MkdirAll(s.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	backup := s.PathFor(target, s.now())
	if err := copyFile(target, backup); err != nil {
		return "", err
	}
	return backup, nil
}

// Restore moves backup back onto target.
func (s *BackupStore) Restore(backup, target string) error {
	if err := os.Rename(backup, target); err != nil {
		return fmt.Errorf("restore backup %s: %w", backup, err)
	}
	return nil
}

// List returns the backups of target, oldest first.
func (s *BackupStore) List(target string) ([]string, error) {
	pattern := filepath.Join(s.Dir(target), filepath.Base(target)+".*.bak")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	// Timestamp layout sorts lexically, and Glob returns sorted names.
	return matches, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}

	// O_CREATE perms are masked by umask and ignored on overwrite.
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("chtimes %s: %w", dst, err)
	}
	return nil
}
