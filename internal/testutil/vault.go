package testutil

import (
	"mirror-go/internal/mirror"
	"mirror-go/internal/vault"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() mirror.Vault {
	return vault.NewMemoryVault("test-vault")
}
