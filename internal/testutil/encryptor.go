package testutil

import (
	"mirror-go/internal/encryption"
	"mirror-go/internal/mirror"
)

// NewTestEncryptor creates an encryptor that marks data instead of encrypting it.
func NewTestEncryptor() mirror.Encryptor {
	return encryption.NewTestEncryptor()
}
