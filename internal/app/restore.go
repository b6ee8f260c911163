package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"mirror-go/internal/config"
	"mirror-go/internal/encryption"
	"mirror-go/internal/mirror"
	"mirror-go/internal/vault"
)

// RestoreBackup downloads the latest database backup of this host from the
// first configured vault, decrypts it and writes it to dest. It does not open
// the local database, so it works when the mirror is behind the vault.
// Returns the restored backup version.
func RestoreBackup(ctx context.Context, cfg *config.Config, dest, passphrase string) (int64, error) {
	if len(cfg.Vaults) == 0 {
		return 0, errors.New("no vaults configured")
	}
	v, err := vault.NewVaultFromConfig(ctx, cfg.Vaults[0])
	if err != nil {
		return 0, fmt.Errorf("creating vault: %w", err)
	}
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return 0, fmt.Errorf("creating encryptor: %w", err)
	}
	return restoreBackup(cfg.HostID, v, enc, dest, passphrase)
}

func restoreBackup(hostID string, v mirror.Vault, enc mirror.Encryptor, dest, passphrase string) (int64, error) {
	version, err := v.GetBackupVersion(hostID, backupName)
	if err != nil {
		return 0, fmt.Errorf("checking vault backup version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no backup stored for host %s", hostID)
	}

	dctx, err := enc.Unlock(passphrase)
	if err != nil {
		return 0, fmt.Errorf("unlocking private key: %w", err)
	}

	sealed, err := os.CreateTemp("", "mirror-restore-*.sealed")
	if err != nil {
		return 0, fmt.Errorf("creating temp file for download: %w", err)
	}
	defer os.Remove(sealed.Name())
	defer sealed.Close()

	if err := v.GetBackup(hostID, backupName, sealed); err != nil {
		return 0, fmt.Errorf("downloading backup: %w", err)
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding backup: %w", err)
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return 0, fmt.Errorf("creating restore destination: %w", err)
	}
	if err := dctx.Decrypt(sealed, out); err != nil {
		out.Close()
		os.Remove(dest)
		return 0, fmt.Errorf("decrypting backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing restore destination: %w", err)
	}
	return version, nil
}

// SetupKeys generates the backup key pair. Encryptors without key material
// have nothing to set up.
func SetupKeys(cfg *config.Config, passphrase string) error {
	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}

// NeedsPassphrase reports whether the configured encryption uses a
// passphrase-protected private key.
func NeedsPassphrase(cfg *config.Config) bool {
	return cfg.Encryption.Type == "" || cfg.Encryption.Type == "age"
}
