package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - MIRROR_CONFIG_PATH: config file location (default: ~/.config/mirror.toml)
//   - MIRROR_HOME: base directory for mirror data (default: ~/.local/share/mirror)
func GetDefaults() (map[string]string, error) {
	configPath, err := envOrHome("MIRROR_CONFIG_PATH", ".config", "mirror.toml")
	if err != nil {
		return nil, err
	}

	baseDir, err := envOrHome("MIRROR_HOME", ".local", "share", "mirror")
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
	}, nil
}

// envOrHome returns the value of env, or a path under the user's home directory.
func envOrHome(env string, elem ...string) (string, error) {
	if path := os.Getenv(env); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{homeDir}, elem...)...), nil
}
