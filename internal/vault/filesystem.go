package vault

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mirror-go/internal/mirror"
)

// FileSystemVault stores backups as files in a directory structure:
//
//	<root>/
//	  backups/
//	    <hostID>/
//	      <name>          (backup item)
//	      <name>.version  (version marker)
type FileSystemVault struct {
	name       string
	root       string
	backupsDir string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	backupsDir := filepath.Join(root, "backups")
	if err := os.MkdirAll(backupsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backups directory: %w", err)
	}

	return &FileSystemVault{
		name:       name,
		root:       root,
		backupsDir: backupsDir,
	}, nil
}

func (v *FileSystemVault) itemPath(hostID, name string) string {
	return filepath.Join(v.backupsDir, hostID, name)
}

// PutBackup stores a backup item and then its version marker. A reader
// never sees a version newer than the item it describes.
func (v *FileSystemVault) PutBackup(hostID string, name string, r io.Reader, size int64, version int64) error {
	destPath := v.itemPath(hostID, name)
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create host directory: %w", err)
	}
	if err := writeFile(destPath, r, size); err != nil {
		return err
	}

	data := strconv.FormatInt(version, 10)
	return writeFile(destPath+".version", strings.NewReader(data), int64(len(data)))
}

// GetBackupVersion returns 0 if no version file exists.
func (v *FileSystemVault) GetBackupVersion(hostID string, name string) (int64, error) {
	data, err := os.ReadFile(v.itemPath(hostID, name) + ".version")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading version file: %w", err)
	}

	version, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version: %w", err)
	}
	return version, nil
}

// GetBackup writes a stored backup item to w.
func (v *FileSystemVault) GetBackup(hostID string, name string, w io.Writer) error {
	f, err := os.Open(v.itemPath(hostID, name))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("backup %q not found for host: %s", name, hostID)
		}
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault directories are accessible.
func (v *FileSystemVault) ValidateSetup() error {
	for _, dir := range []string{v.root, v.backupsDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("vault directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("vault path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes r to destPath through a temp file and rename.
func writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements mirror.Vault interface
var _ mirror.Vault = (*FileSystemVault)(nil)
