package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"mirror-go/internal/mirror"
)

// MemoryVault keeps backups in memory, which makes it useful for testing.
// It is safe for concurrent use.
type MemoryVault struct {
	name    string
	items   map[string][]byte // "hostID/name" -> data
	version map[string]int64  // "hostID/name" -> version
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		items:   make(map[string][]byte),
		version: make(map[string]int64),
	}
}

func itemKey(hostID, name string) string {
	return hostID + "/" + name
}

// PutBackup stores a named backup item for a host.
func (m *MemoryVault) PutBackup(hostID string, name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read backup: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := itemKey(hostID, name)
	m.items[key] = data
	m.version[key] = version
	return nil
}

// GetBackupVersion returns 0 if nothing has been stored for this host/name.
func (m *MemoryVault) GetBackupVersion(hostID string, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.version[itemKey(hostID, name)], nil
}

// GetBackup writes a stored backup item to w.
func (m *MemoryVault) GetBackup(hostID string, name string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.items[itemKey(hostID, name)]
	if !ok {
		return fmt.Errorf("backup %q not found for host: %s", name, hostID)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements mirror.Vault interface
var _ mirror.Vault = (*MemoryVault)(nil)
