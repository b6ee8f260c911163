package mirror

import "io"

// Vault stores mirror database backups off-machine.
// All operations stream through io.Reader/io.Writer.
type Vault interface {
	// PutBackup stores a named backup item for a host. size is the number of
	// bytes that will be read from r. version is stored alongside the item
	// so a stale local mirror can be detected.
	PutBackup(hostID string, name string, r io.Reader, size int64, version int64) error

	// GetBackup retrieves a named backup item for a host and writes it to w.
	GetBackup(hostID string, name string, w io.Writer) error

	// GetBackupVersion returns the version of a named item on a host.
	// Returns 0 if nothing has been stored.
	GetBackupVersion(hostID string, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
