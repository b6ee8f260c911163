package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for mirror.
type Config struct {
	HostID        string           `toml:"host_id"`
	BaseDir       string           `toml:"base_dir"`
	LogDir        string           `toml:"log_dir"`
	Log           LogConfig        `toml:"log"`
	Remote        RemoteConfig     `toml:"remote"`
	ResourceTypes []string         `toml:"resource_types"`
	Taxonomies    []string         `toml:"taxonomies"`
	Plugins       []string         `toml:"plugins"`
	Push          PushConfig       `toml:"push"`
	Database      DatabaseConfig   `toml:"database"`
	Vaults        []VaultConfig    `toml:"vaults"`
	Encryption    EncryptionConfig `toml:"encryption"`
}

// LogConfig controls rotation of the log file.
type LogConfig struct {
	MaxSizeMB  int `toml:"max_size_mb"`
	MaxBackups int `toml:"max_backups"`
	MaxAgeDays int `toml:"max_age_days"`
}

// RemoteConfig describes the content API the mirror talks to.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "http" or "memory"

	// HTTP-specific fields (only used when Type == "http")
	BaseURL    string   `toml:"base_url,omitempty"`
	AuthHeader string   `toml:"auth_header,omitempty"` // sent verbatim as Authorization
	Timeout    Duration `toml:"timeout,omitempty"`

	PageSize int `toml:"page_size"`
}

// PushConfig holds push defaults.
type PushConfig struct {
	Concurrency       int  `toml:"concurrency"`
	SkipConflictCheck bool `toml:"skip_conflict_check"`
}

// EncryptionConfig holds paths to the age key pair used for backup encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default), "test" or "none"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a backup vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // S3-compatible services

	// Static S3 credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// DatabaseConfig represents configuration for the mirror database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// Duration is a time.Duration written as a string ("30s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:        hostID,
		BaseDir:       baseDir,
		LogDir:        filepath.Join(baseDir, "log"),
		Log:           LogConfig{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 30},
		Remote:        RemoteConfig{Type: "http", Timeout: Duration{30 * time.Second}, PageSize: 50},
		ResourceTypes: []string{"posts", "pages"},
		Taxonomies:    []string{"categories", "tags"},
		Push:          PushConfig{Concurrency: 4},
		Database:      DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "mirror.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "mirror.key"),
		},
	}
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HostID == "" {
		errs = append(errs, errors.New("host_id is required"))
	}
	if len(c.ResourceTypes) == 0 {
		errs = append(errs, errors.New("resource_types must list at least one type"))
	}

	switch c.Remote.Type {
	case "http":
		if c.Remote.BaseURL == "" {
			errs = append(errs, errors.New("remote.base_url required for http remote"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown remote type: %q", c.Remote.Type))
	}
	if c.Remote.PageSize < 0 {
		errs = append(errs, fmt.Errorf("remote.page_size must not be negative, got %d", c.Remote.PageSize))
	}
	if c.Push.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("push.concurrency must not be negative, got %d", c.Push.Concurrency))
	}

	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			errs = append(errs, errors.New("database.data_dir required for sqlite database"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database type: %q", c.Database.Type))
	}

	for i, v := range c.Vaults {
		switch v.Type {
		case "memory":
		case "filesystem":
			if v.FSVaultRoot == "" {
				errs = append(errs, fmt.Errorf("vaults[%d]: fs_vault_root required for filesystem vault", i))
			}
		case "s3":
			if v.S3Bucket == "" {
				errs = append(errs, fmt.Errorf("vaults[%d]: s3_bucket required for s3 vault", i))
			}
		default:
			errs = append(errs, fmt.Errorf("vaults[%d]: unknown vault type: %q", i, v.Type))
		}
	}

	switch c.Encryption.Type {
	case "", "age", "test", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown encryption type: %q", c.Encryption.Type))
	}

	return errors.Join(errs...)
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes a new config file. It refuses to overwrite an existing one.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
