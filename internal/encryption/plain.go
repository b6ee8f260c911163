package encryption

import (
	"bytes"
	"fmt"
	"io"

	"mirror-go/internal/mirror"
)

// HeaderEncryptor marks data with a fixed header instead of encrypting it.
// The "test" type uses it to keep backup tests free of key material, and the
// "none" type uses it for vaults that are already trusted. Decrypt rejects
// data without the header, so a plaintext backup is never confused with a
// sealed one.
type HeaderEncryptor struct {
	header []byte
}

var (
	testHeader  = []byte("MIRTEST\x00")
	plainHeader = []byte("MIRPLAIN")
)

var _ mirror.Encryptor = (*HeaderEncryptor)(nil)

// NewTestEncryptor creates the deterministic encryptor used in tests.
func NewTestEncryptor() *HeaderEncryptor {
	return &HeaderEncryptor{header: testHeader}
}

// NewPlainEncryptor creates an encryptor that stores backups unencrypted.
func NewPlainEncryptor() *HeaderEncryptor {
	return &HeaderEncryptor{header: plainHeader}
}

func (e *HeaderEncryptor) Setup(string) error { return nil }

func (e *HeaderEncryptor) IsConfigured() bool { return true }

func (e *HeaderEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(e.header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *HeaderEncryptor) Unlock(string) (mirror.DecryptionContext, error) {
	return e, nil
}

// Decrypt strips the header written by Encrypt.
func (e *HeaderEncryptor) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(e.header))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(header, e.header) {
		return fmt.Errorf("unexpected backup header %q", header)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
