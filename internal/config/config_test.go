package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := &Config{
		HostID:  "test-host-abc",
		BaseDir: "/home/user/.local/share/mirror",
		LogDir:  "/home/user/.local/share/mirror/log",
		Log:     LogConfig{MaxSizeMB: 5, MaxBackups: 2, MaxAgeDays: 7},
		Remote: RemoteConfig{
			Type:       "http",
			BaseURL:    "https://cms.example.com/api",
			AuthHeader: "Bearer abc",
			Timeout:    Duration{45 * time.Second},
			PageSize:   25,
		},
		ResourceTypes: []string{"posts", "pages"},
		Taxonomies:    []string{"tags"},
		Plugins:       []string{"seo"},
		Push:          PushConfig{Concurrency: 8, SkipConflictCheck: true},
		Vaults: []VaultConfig{
			{Type: "filesystem", Name: "local", FSVaultRoot: "/backup/vault"},
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  "/home/user/.local/share/mirror/keys/mirror.pub",
			PrivateKeyPath: "/home/user/.local/share/mirror/keys/mirror.key",
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: "/home/user/.local/share/mirror/db"},
	}

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.HostID != original.HostID {
		t.Errorf("HostID = %q, want %q", got.HostID, original.HostID)
	}
	if got.LogDir != original.LogDir {
		t.Errorf("LogDir = %q, want %q", got.LogDir, original.LogDir)
	}
	if got.Log != original.Log {
		t.Errorf("Log = %+v, want %+v", got.Log, original.Log)
	}
	if got.Remote != original.Remote {
		t.Errorf("Remote = %+v, want %+v", got.Remote, original.Remote)
	}
	if strings.Join(got.ResourceTypes, ",") != "posts,pages" {
		t.Errorf("ResourceTypes = %v, want [posts pages]", got.ResourceTypes)
	}
	if len(got.Plugins) != 1 || got.Plugins[0] != "seo" {
		t.Errorf("Plugins = %v, want [seo]", got.Plugins)
	}
	if got.Push != original.Push {
		t.Errorf("Push = %+v, want %+v", got.Push, original.Push)
	}
	if len(got.Vaults) != 1 {
		t.Fatalf("len(Vaults) = %d, want 1", len(got.Vaults))
	}
	if got.Vaults[0].FSVaultRoot != "/backup/vault" {
		t.Errorf("Vault.FSVaultRoot = %q, want %q", got.Vaults[0].FSVaultRoot, "/backup/vault")
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
}

func TestManager_Read_Duration(t *testing.T) {
	m := &Manager{}

	got, err := m.Read(strings.NewReader("[remote]\ntimeout = \"1m30s\"\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Remote.Timeout.Duration != 90*time.Second {
		t.Errorf("Remote.Timeout = %v, want 1m30s", got.Remote.Timeout)
	}

	if _, err := m.Read(strings.NewReader("[remote]\ntimeout = \"soon\"\n")); err == nil {
		t.Error("Read() expected error for invalid duration")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("host-1", "/data/mirror")

	if cfg.HostID != "host-1" {
		t.Errorf("HostID = %q, want %q", cfg.HostID, "host-1")
	}
	if cfg.LogDir != "/data/mirror/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/mirror/log")
	}
	if cfg.Database.DataDir != "/data/mirror/db" {
		t.Errorf("Database.DataDir = %q, want %q", cfg.Database.DataDir, "/data/mirror/db")
	}
	if cfg.Encryption.PublicKeyPath != "/data/mirror/keys/mirror.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/mirror/keys/mirror.pub")
	}
	if cfg.Push.Concurrency != 4 {
		t.Errorf("Push.Concurrency = %d, want 4", cfg.Push.Concurrency)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig("h1", "/data/mirror")
		cfg.Remote.BaseURL = "https://cms.example.com/api"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults with base url", mutate: func(*Config) {}},
		{name: "missing host id", mutate: func(c *Config) { c.HostID = "" }, wantErr: "host_id"},
		{name: "no resource types", mutate: func(c *Config) { c.ResourceTypes = nil }, wantErr: "resource_types"},
		{name: "http without base url", mutate: func(c *Config) { c.Remote.BaseURL = "" }, wantErr: "base_url"},
		{name: "memory remote", mutate: func(c *Config) { c.Remote = RemoteConfig{Type: "memory"} }},
		{name: "unknown remote", mutate: func(c *Config) { c.Remote.Type = "ftp" }, wantErr: "unknown remote type"},
		{name: "negative concurrency", mutate: func(c *Config) { c.Push.Concurrency = -1 }, wantErr: "push.concurrency"},
		{name: "sqlite without data dir", mutate: func(c *Config) { c.Database.DataDir = "" }, wantErr: "data_dir"},
		{name: "s3 vault without bucket", mutate: func(c *Config) {
			c.Vaults = []VaultConfig{{Type: "s3", Name: "cloud"}}
		}, wantErr: "s3_bucket"},
		{name: "unknown encryption", mutate: func(c *Config) { c.Encryption.Type = "rot13" }, wantErr: "encryption"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "mirror.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "mirror.toml")
		cfg := NewConfig("h1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "mirror.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.HostID != "read-test" {
			t.Errorf("HostID = %q, want %q", got.HostID, "read-test")
		}
		if got.Remote.Timeout.Duration != 30*time.Second {
			t.Errorf("Remote.Timeout = %v, want 30s", got.Remote.Timeout)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/mirror.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
